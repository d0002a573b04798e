package db_test

import (
	"context"
	"testing"

	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/db"
	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/geocoder89/farmhub/internal/repo/sqlite"
	"github.com/geocoder89/farmhub/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestEnsureAdminUser(t *testing.T) {
	ctx := context.Background()

	conn, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	users := sqlite.NewUsersRepo(conn, nil)
	hasher := security.NewHasher(bcrypt.MinCost, 1)

	cfg := config.Config{AdminEmail: "Boss@Farm.test", AdminPassword: "s3cret-pass", AdminName: "Boss"}

	require.NoError(t, db.EnsureAdminUser(ctx, users, hasher, cfg, nil))

	admin, err := users.GetByEmail(ctx, "boss@farm.test")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, admin.Role)
	assert.NoError(t, hasher.Compare(ctx, admin.PasswordHash, "s3cret-pass"))

	// second boot must not touch the existing account
	cfg.AdminPassword = "changed"
	require.NoError(t, db.EnsureAdminUser(ctx, users, hasher, cfg, nil))

	again, err := users.GetByEmail(ctx, "boss@farm.test")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
	assert.Equal(t, admin.PasswordHash, again.PasswordHash)
}

func TestEnsureAdminUser_SkippedWithoutCredentials(t *testing.T) {
	ctx := context.Background()

	conn, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	users := sqlite.NewUsersRepo(conn, nil)

	require.NoError(t, db.EnsureAdminUser(ctx, users, security.NewHasher(bcrypt.MinCost, 1), config.Config{AdminEmail: "boss@farm.test"}, nil))

	_, err = users.GetByEmail(ctx, "boss@farm.test")
	assert.ErrorIs(t, err, user.ErrNotFound)
}
