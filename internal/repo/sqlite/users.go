package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/geocoder89/farmhub/internal/observability"
)

type UsersRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewUsersRepo(db *sql.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	var created, updated string

	err := r.prom.ObserveDB("users.get_by_email", func() error {
		return r.db.QueryRowContext(ctx,
			`SELECT id, email, password_hash, name, role, created_at, updated_at
			 FROM users WHERE email = ?`,
			user.NormalizeEmail(email),
		).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &created, &updated)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	if u.CreatedAt, err = decodeTime(created); err != nil {
		return user.User{}, err
	}
	if u.UpdatedAt, err = decodeTime(updated); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetIdentity(ctx context.Context, id string) (user.Identity, error) {
	var i user.Identity
	var created, updated string

	err := r.prom.ObserveDB("users.get_identity", func() error {
		return r.db.QueryRowContext(ctx,
			`SELECT id, name, email, role, created_at, updated_at
			 FROM users WHERE id = ?`, id,
		).Scan(&i.ID, &i.Name, &i.Email, &i.Role, &created, &updated)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.Identity{}, user.ErrNotFound
		}
		return user.Identity{}, err
	}

	if i.CreatedAt, err = decodeTime(created); err != nil {
		return user.Identity{}, err
	}
	if i.UpdatedAt, err = decodeTime(updated); err != nil {
		return user.Identity{}, err
	}
	return i, nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	u.Email = user.NormalizeEmail(u.Email)

	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role, encodeTime(u.CreatedAt), encodeTime(u.UpdatedAt),
		)
		return err
	})

	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
