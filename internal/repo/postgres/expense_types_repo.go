package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const expenseTypeNameConstraint = "expense_types_name_uniq"

type ExpenseTypesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewExpenseTypesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ExpenseTypesRepo {
	return &ExpenseTypesRepo{pool: pool, prom: prom}
}

func (r *ExpenseTypesRepo) List(ctx context.Context) ([]expensetype.ExpenseType, error) {
	out := make([]expensetype.ExpenseType, 0)

	err := r.prom.ObserveDB("expense_types.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, name, description, created_at, updated_at
			 FROM expense_types
			 ORDER BY LOWER(name) ASC, id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t expensetype.ExpenseType
			if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
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
		return r.pool.QueryRow(ctx,
			`SELECT id, name, description, created_at, updated_at
			 FROM expense_types WHERE id = $1`, id,
		).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return expensetype.ExpenseType{}, expensetype.ErrNotFound
		}
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

func (r *ExpenseTypesRepo) Create(ctx context.Context, req expensetype.CreateRequest) (expensetype.ExpenseType, error) {
	t := expensetype.NewFromCreateRequest(req)

	err := r.prom.ObserveDB("expense_types.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO expense_types (id, name, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.Name, t.Description, t.CreatedAt, t.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err, expenseTypeNameConstraint) {
			return expensetype.ExpenseType{}, expensetype.ErrNameTaken
		}
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

func (r *ExpenseTypesRepo) Update(ctx context.Context, id string, req expensetype.UpdateRequest) (expensetype.ExpenseType, error) {
	var t expensetype.ExpenseType

	err := r.prom.ObserveDB("expense_types.update", func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE expense_types
			 SET name = $2, description = $3, updated_at = NOW()
			 WHERE id = $1
			 RETURNING id, name, description, created_at, updated_at`,
			id, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description),
		).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	})

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return expensetype.ExpenseType{}, expensetype.ErrNotFound
		case IsUniqueViolation(err, expenseTypeNameConstraint):
			return expensetype.ExpenseType{}, expensetype.ErrNameTaken
		}
		return expensetype.ExpenseType{}, err
	}
	return t, nil
}

// Delete refuses types that expenses still reference (ON DELETE RESTRICT).
func (r *ExpenseTypesRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.prom.ObserveDB("expense_types.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM expense_types WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})

	if err != nil {
		if IsFKViolation(err) {
			return expensetype.ErrInUse
		}
		return err
	}

	if affected == 0 {
		return expensetype.ErrNotFound
	}
	return nil
}
