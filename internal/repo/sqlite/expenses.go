package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/domain/expense"
	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/observability"
)

type ExpensesRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewExpensesRepo(db *sql.DB, prom *observability.Prom) *ExpensesRepo {
	return &ExpensesRepo{db: db, prom: prom}
}

const expenseSelect = `SELECT e.id, e.amount, e.type_id, t.name, e.reason, e.date, e.user_id, e.created_at, e.updated_at
	FROM expenses e JOIN expense_types t ON t.id = e.type_id`

func scanExpense(row rowScanner, extra ...any) (expense.Expense, error) {
	var e expense.Expense
	var date, created, updated string

	dest := []any{&e.ID, &e.Amount, &e.TypeID, &e.TypeName, &e.Reason, &date, &e.UserID, &created, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return expense.Expense{}, err
	}

	var err error
	if e.Date, err = decodeTime(date); err != nil {
		return expense.Expense{}, err
	}
	if e.CreatedAt, err = decodeTime(created); err != nil {
		return expense.Expense{}, err
	}
	if e.UpdatedAt, err = decodeTime(updated); err != nil {
		return expense.Expense{}, err
	}
	return e, nil
}

func (r *ExpensesRepo) Create(ctx context.Context, scope expense.Scope, c expense.Changes) (expense.Expense, error) {
	if !scope.Valid() {
		return expense.Expense{}, expense.ErrUnscoped
	}

	e := expense.NewForOwner(scope, c)

	err := r.prom.ObserveDB("expenses.create", func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO expenses (id, amount, type_id, reason, date, user_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Amount, e.TypeID, e.Reason, encodeTime(e.Date), e.UserID, encodeTime(e.CreatedAt), encodeTime(e.UpdatedAt),
		)
		return err
	})

	if err != nil {
		if isFKViolation(err) {
			return expense.Expense{}, expensetype.ErrNotFound
		}
		return expense.Expense{}, err
	}

	return r.GetByID(ctx, scope, e.ID)
}

func (r *ExpensesRepo) GetByID(ctx context.Context, scope expense.Scope, id string) (expense.Expense, error) {
	if !scope.Valid() {
		return expense.Expense{}, expense.ErrUnscoped
	}

	var e expense.Expense

	err := r.prom.ObserveDB("expenses.get", func() error {
		var err error
		e, err = scanExpense(r.db.QueryRowContext(ctx,
			expenseSelect+` WHERE e.id = ? AND e.user_id = ?`,
			strings.ToLower(id), scope.OwnerID()))
		return err
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	conds := []string{"e.user_id = ?"}
	args := []any{scope.OwnerID()}

	if f.TypeID != nil {
		conds = append(conds, "e.type_id = ?")
		args = append(args, *f.TypeID)
	}
	if f.From != nil {
		conds = append(conds, "e.date >= ?")
		args = append(args, encodeTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "e.date <= ?")
		args = append(args, encodeTime(*f.To))
	}

	where := " WHERE " + strings.Join(conds, " AND ")

	total := 0
	err := r.prom.ObserveDB("expenses.count", func() error {
		return r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses e`+where, args...).Scan(&total)
	})
	if err != nil {
		return nil, 0, err
	}

	output := make([]expense.Expense, 0, f.Limit)

	err = r.prom.ObserveDB("expenses.list", func() error {
		rows, err := r.db.QueryContext(ctx,
			expenseSelect+where+` ORDER BY e.date DESC, e.id DESC LIMIT ? OFFSET ?`,
			append(args, f.Limit, f.Offset())...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExpense(rows)
			if err != nil {
				return err
			}
			output = append(output, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return output, total, nil
}

func (r *ExpensesRepo) Update(ctx context.Context, scope expense.Scope, id string, c expense.Changes) (expense.Expense, error) {
	if !scope.Valid() {
		return expense.Expense{}, expense.ErrUnscoped
	}

	var date any
	if c.Date != nil {
		date = encodeTime(*c.Date)
	}

	var affected int64

	err := r.prom.ObserveDB("expenses.update", func() error {
		res, err := r.db.ExecContext(ctx,
			`UPDATE expenses
			 SET amount = ?, type_id = ?, reason = ?, date = COALESCE(?, date), updated_at = ?
			 WHERE id = ? AND user_id = ?`,
			c.Amount, c.TypeID, c.Reason, date, encodeTime(time.Now()), strings.ToLower(id), scope.OwnerID(),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})

	if err != nil {
		if isFKViolation(err) {
			return expense.Expense{}, expensetype.ErrNotFound
		}
		return expense.Expense{}, err
	}

	if affected == 0 {
		return expense.Expense{}, expense.ErrNotFound
	}

	return r.GetByID(ctx, scope, id)
}

func (r *ExpensesRepo) Delete(ctx context.Context, scope expense.Scope, id string) error {
	if !scope.Valid() {
		return expense.ErrUnscoped
	}

	var affected int64

	err := r.prom.ObserveDB("expenses.delete", func() error {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM expenses WHERE id = ? AND user_id = ?`, strings.ToLower(id), scope.OwnerID())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
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
