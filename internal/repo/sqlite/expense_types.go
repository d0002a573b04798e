package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/observability"
)

type ExpenseTypesRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewExpenseTypesRepo(db *sql.DB, prom *observability.Prom) *ExpenseTypesRepo {
	return &ExpenseTypesRepo{db: db, prom: prom}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpenseType(row rowScanner) (expensetype.ExpenseType, error) {
	var t expensetype.ExpenseType
	var created, updated string

	if err := row.Scan(&t.ID, &t.Name, &t.Description, &created, &updated); err != nil {
		return expensetype.ExpenseType{}, err
	}

	var err error
	if t.CreatedAt, err = decodeTime(created); err != nil {
		return expensetype.ExpenseType{}, err
	}
	if t.UpdatedAt, err = decodeTime(updated); err != nil {
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

func (r *ExpenseTypesRepo) List(ctx context.Context) ([]expensetype.ExpenseType, error) {
	out := make([]expensetype.ExpenseType, 0)

	err := r.prom.ObserveDB("expense_types.list", func() error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT id, name, description, created_at, updated_at
			 FROM expense_types
			 ORDER BY name COLLATE NOCASE ASC, id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanExpenseType(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ExpenseTypesRepo) GetByID(ctx context.Context, id string) (expensetype.ExpenseType, error) {
	var t expensetype.ExpenseType

	err := r.prom.ObserveDB("expense_types.get", func() error {
		var err error
		t, err = scanExpenseType(r.db.QueryRowContext(ctx,
			`SELECT id, name, description, created_at, updated_at
			 FROM expense_types WHERE id = ?`, strings.ToLower(id)))
		return err
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return expensetype.ExpenseType{}, expensetype.ErrNotFound
		}
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

func (r *ExpenseTypesRepo) Create(ctx context.Context, req expensetype.CreateRequest) (expensetype.ExpenseType, error) {
	t := expensetype.NewFromCreateRequest(req)

	err := r.prom.ObserveDB("expense_types.create", func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO expense_types (id, name, description, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Description, encodeTime(t.CreatedAt), encodeTime(t.UpdatedAt),
		)
		return err
	})

	if err != nil {
		if isUniqueViolation(err, "expense_types.name") {
			return expensetype.ExpenseType{}, expensetype.ErrNameTaken
		}
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

func (r *ExpenseTypesRepo) Update(ctx context.Context, id string, req expensetype.UpdateRequest) (expensetype.ExpenseType, error) {
	var t expensetype.ExpenseType

	err := r.prom.ObserveDB("expense_types.update", func() error {
		var err error
		t, err = scanExpenseType(r.db.QueryRowContext(ctx,
			`UPDATE expense_types
			 SET name = ?, description = ?, updated_at = ?
			 WHERE id = ?
			 RETURNING id, name, description, created_at, updated_at`,
			strings.TrimSpace(req.Name), strings.TrimSpace(req.Description), encodeTime(time.Now()), strings.ToLower(id),
		))
		return err
	})

	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return expensetype.ExpenseType{}, expensetype.ErrNotFound
		case isUniqueViolation(err, "expense_types.name"):
			return expensetype.ExpenseType{}, expensetype.ErrNameTaken
		}
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

func (r *ExpenseTypesRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.prom.ObserveDB("expense_types.delete", func() error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM expense_types WHERE id = ?`, strings.ToLower(id))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})

	if err != nil {
		if isFKViolation(err) {
			return expensetype.ErrInUse
		}
		return err
	}

	if affected == 0 {
		return expensetype.ErrNotFound
	}
	return nil
}
