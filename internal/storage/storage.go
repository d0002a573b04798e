// Package storage opens the configured database driver and hands back the
// repositories built on it. Both the API process and farmctl go through Open.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/db"
	"github.com/geocoder89/farmhub/internal/domain/expense"
	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/geocoder89/farmhub/internal/observability"
	"github.com/geocoder89/farmhub/internal/repo/postgres"
	"github.com/geocoder89/farmhub/internal/repo/sqlite"
)

type UsersRepo interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetIdentity(ctx context.Context, id string) (user.Identity, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	Ping(ctx context.Context) error
}

type ExpensesRepo interface {
	Create(ctx context.Context, scope expense.Scope, c expense.Changes) (expense.Expense, error)
	GetByID(ctx context.Context, scope expense.Scope, id string) (expense.Expense, error)
	List(ctx context.Context, scope expense.Scope, f expense.ListFilter) ([]expense.Expense, int, error)
	Update(ctx context.Context, scope expense.Scope, id string, c expense.Changes) (expense.Expense, error)
	Delete(ctx context.Context, scope expense.Scope, id string) error
}

type ExpenseTypesRepo interface {
	List(ctx context.Context) ([]expensetype.ExpenseType, error)
	GetByID(ctx context.Context, id string) (expensetype.ExpenseType, error)
	Create(ctx context.Context, req expensetype.CreateRequest) (expensetype.ExpenseType, error)
	Update(ctx context.Context, id string, req expensetype.UpdateRequest) (expensetype.ExpenseType, error)
	Delete(ctx context.Context, id string) error
}

type Stores struct {
	Driver       string
	Users        UsersRepo
	Expenses     ExpensesRepo
	ExpenseTypes ExpenseTypesRepo

	close func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects, applies the schema, and builds the repositories.
func Open(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (*Stores, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}

		log.Info("database ready", "driver", cfg.DBDriver)

		return &Stores{
			Driver:       cfg.DBDriver,
			Users:        postgres.NewUsersRepo(pool, prom),
			Expenses:     postgres.NewExpensesRepo(pool, prom),
			ExpenseTypes: postgres.NewExpenseTypesRepo(pool, prom),
			close:        pool.Close,
		}, nil

	case config.DriverSQLite:
		// Open applies the schema itself
		conn, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		log.Info("database ready", "driver", cfg.DBDriver, "path", cfg.SQLitePath)

		return &Stores{
			Driver:       cfg.DBDriver,
			Users:        sqlite.NewUsersRepo(conn, prom),
			Expenses:     sqlite.NewExpensesRepo(conn, prom),
			ExpenseTypes: sqlite.NewExpenseTypesRepo(conn, prom),
			close:        func() { _ = conn.Close() },
		}, nil
	}

	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}
