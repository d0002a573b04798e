package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/domain/expense"
	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Every query carries user_id from the Scope; there is no unscoped read or write.
type ExpensesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewExpensesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ExpensesRepo {
	return &ExpensesRepo{pool: pool, prom: prom}
}

const expenseColumns = `e.id, e.amount, e.type_id, t.name, e.reason, e.date, e.user_id, e.created_at, e.updated_at`

func scanExpense(row pgx.Row, e *expense.Expense, extra ...any) error {
	dest := []any{&e.ID, &e.Amount, &e.TypeID, &e.TypeName, &e.Reason, &e.Date, &e.UserID, &e.CreatedAt, &e.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (r *ExpensesRepo) Create(ctx context.Context, scope expense.Scope, c expense.Changes) (expense.Expense, error) {
	if !scope.Valid() {
		return expense.Expense{}, expense.ErrUnscoped
	}

	e := expense.NewForOwner(scope, c)

	err := r.prom.ObserveDB("expenses.create", func() error {
		return scanExpense(r.pool.QueryRow(ctx,
			`WITH ins AS (
				INSERT INTO expenses (id, amount, type_id, reason, date, user_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING *
			)
			SELECT `+expenseColumns+`
			FROM ins e JOIN expense_types t ON t.id = e.type_id`,
			e.ID, e.Amount, e.TypeID, e.Reason, e.Date, e.UserID, e.CreatedAt, e.UpdatedAt,
		), &e)
	})

	if err != nil {
		if IsFKViolation(err) {
			return expense.Expense{}, expensetype.ErrNotFound
		}
		return expense.Expense{}, err
	}
	return e, nil
}

func (r *ExpensesRepo) GetByID(ctx context.Context, scope expense.Scope, id string) (expense.Expense, error) {
	if !scope.Valid() {
		return expense.Expense{}, expense.ErrUnscoped
	}

	var e expense.Expense

	err := r.prom.ObserveDB("expenses.get", func() error {
		return scanExpense(r.pool.QueryRow(ctx,
			`SELECT `+expenseColumns+`
			 FROM expenses e JOIN expense_types t ON t.id = e.type_id
			 WHERE e.id = $1 AND e.user_id = $2`,
			id, scope.OwnerID(),
		), &e)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return expense.Expense{}, expense.ErrNotFound
		}
		return expense.Expense{}, err
	}
	return e, nil
}

func (r *ExpensesRepo) List(ctx context.Context, scope expense.Scope, f expense.ListFilter) ([]expense.Expense, int, error) {
	if !scope.Valid() {
		return nil, 0, expense.ErrUnscoped
	}

	conds := []string{"e.user_id = $1"}
	args := []any{scope.OwnerID()}
	argsPosition := 2

	if f.TypeID != nil {
		conds = append(conds, fmt.Sprintf("e.type_id = $%d", argsPosition))
		args = append(args, *f.TypeID)
		argsPosition++
	}

	if f.From != nil {
		conds = append(conds, fmt.Sprintf("e.date >= $%d", argsPosition))
		args = append(args, *f.From)
		argsPosition++
	}

	if f.To != nil {
		conds = append(conds, fmt.Sprintf("e.date <= $%d", argsPosition))
		args = append(args, *f.To)
		argsPosition++
	}

	where := " WHERE " + strings.Join(conds, " AND ")

	query := `SELECT ` + expenseColumns + `, COUNT(*) OVER() AS total
		FROM expenses e JOIN expense_types t ON t.id = e.type_id` + where +
		fmt.Sprintf(" ORDER BY e.date DESC, e.id DESC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)

	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset())

	output := make([]expense.Expense, 0, f.Limit)
	total := 0

	err := r.prom.ObserveDB("expenses.list", func() error {
		rows, err := r.pool.Query(ctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e expense.Expense
			var t int
			if err := scanExpense(rows, &e, &t); err != nil {
				return err
			}
			total = t
			output = append(output, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	// past the last page the window count has no row to ride on
	if len(output) == 0 && f.Offset() > 0 {
		err = r.prom.ObserveDB("expenses.count", func() error {
			return r.pool.QueryRow(ctx,
				`SELECT COUNT(*) FROM expenses e`+where, args...,
			).Scan(&total)
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return output, total, nil
}

// Update replaces amount, type and reason; a nil Date keeps the stored one.
func (r *ExpensesRepo) Update(ctx context.Context, scope expense.Scope, id string, c expense.Changes) (expense.Expense, error) {
	if !scope.Valid() {
		return expense.Expense{}, expense.ErrUnscoped
	}

	var date *time.Time
	if c.Date != nil {
		d := c.Date.UTC()
		date = &d
	}

	var e expense.Expense

	err := r.prom.ObserveDB("expenses.update", func() error {
		return scanExpense(r.pool.QueryRow(ctx,
			`WITH upd AS (
				UPDATE expenses
				SET amount = $3, type_id = $4, reason = $5,
				    date = COALESCE($6, date), updated_at = NOW()
				WHERE id = $1 AND user_id = $2
				RETURNING *
			)
			SELECT `+expenseColumns+`
			FROM upd e JOIN expense_types t ON t.id = e.type_id`,
			id, scope.OwnerID(), c.Amount, c.TypeID, c.Reason, date,
		), &e)
	})

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return expense.Expense{}, expense.ErrNotFound
		case IsFKViolation(err):
			return expense.Expense{}, expensetype.ErrNotFound
		}
		return expense.Expense{}, err
	}
	return e, nil
}

func (r *ExpensesRepo) Delete(ctx context.Context, scope expense.Scope, id string) error {
	if !scope.Valid() {
		return expense.ErrUnscoped
	}

	var affected int64

	err := r.prom.ObserveDB("expenses.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, scope.OwnerID())
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}

	if affected == 0 {
		return expense.ErrNotFound
	}
	return nil
}
