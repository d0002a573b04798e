package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/geocoder89/farmhub/internal/auth"
	"github.com/geocoder89/farmhub/internal/cache"
	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/db"
	apphttp "github.com/geocoder89/farmhub/internal/http"
	"github.com/geocoder89/farmhub/internal/http/handlers"
	"github.com/geocoder89/farmhub/internal/observability"
	"github.com/geocoder89/farmhub/internal/repo/postgres"
	"github.com/geocoder89/farmhub/internal/repo/sqlite"
	"github.com/geocoder89/farmhub/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@farm.test"
	adminPassword = "admin-pass-123"
)

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		JWTSecret:          "integration-test-secret-0123456789abcdef",
		JWTTTL:             time.Hour,
		BcryptCost:         bcrypt.MinCost,
		AdminEmail:         adminEmail,
		AdminPassword:      adminPassword,
		AdminName:          "Farm Admin",
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		MaxBodyBytes:       1 << 20,
		CacheTTL:           time.Minute,
	}
}

type app struct {
	router http.Handler
	cfg    config.Config
}

// forEachStore runs fn against sqlite always, and against Postgres too when
// TEST_DB_DSN is set.
func forEachStore(t *testing.T, fn func(t *testing.T, a app)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteApp(t))
	})

	if dsn := os.Getenv("TEST_DB_DSN"); dsn != "" {
		t.Run("postgres", func(t *testing.T) {
			fn(t, newPostgresApp(t, dsn))
		})
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func baseDeps(t *testing.T, cfg config.Config) apphttp.Deps {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	reg := observability.NewRegistry()

	return apphttp.Deps{
		Config:    cfg,
		Log:       quietLogger(),
		Prom:      observability.NewProm(reg),
		Metrics:   reg,
		Tokens:    tokens,
		Transport: auth.NewTransport(cfg.JWTTTL, false),
		Hasher:    security.NewHasher(cfg.BcryptCost, 4),
		Cache:     cache.NewMemory(cfg.CacheTTL),
	}
}

func newSQLiteApp(t *testing.T) app {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()

	conn, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	d := baseDeps(t, cfg)
	users := sqlite.NewUsersRepo(conn, d.Prom)
	d.Users = users
	d.Expenses = sqlite.NewExpensesRepo(conn, d.Prom)
	d.ExpenseTypes = sqlite.NewExpenseTypesRepo(conn, d.Prom)
	d.ReadyChecks = map[string]handlers.Pinger{"db": users}

	if err := db.EnsureAdminUser(ctx, users, d.Hasher, cfg, nil); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	return app{router: apphttp.NewRouter(d), cfg: cfg}
}

func newPostgresApp(t *testing.T, dsn string) app {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("pg pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE expenses, expense_types, users CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	d := baseDeps(t, cfg)
	users := postgres.NewUsersRepo(pool, d.Prom)
	d.Users = users
	d.Expenses = postgres.NewExpensesRepo(pool, d.Prom)
	d.ExpenseTypes = postgres.NewExpenseTypesRepo(pool, d.Prom)
	d.ReadyChecks = map[string]handlers.Pinger{"db": users}

	if err := db.EnsureAdminUser(ctx, users, d.Hasher, cfg, nil); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	return app{router: apphttp.NewRouter(d), cfg: cfg}
}

// helpers

type reqOpt func(*http.Request)

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func doRequest(router http.Handler, method, path, body string, opts ...reqOpt) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, o := range opts {
		o(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, w.Result()
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func tokenCookie(t *testing.T, response *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range response.Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}

	t.Fatalf("%s cookie not found in response", auth.CookieName)
	return nil
}

type authBody struct {
	Token   string `json:"token"`
	Message string `json:"message"`
	User    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func register(t *testing.T, a app, name, email, password string) authBody {
	t.Helper()

	w, _ := doRequest(a.router, http.MethodPost, "/api/auth/register",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register got %d, want 201, body=%s", w.Code, w.Body.String())
	}

	var out authBody
	mustReadJSON(t, w, &out)
	return out
}

func login(t *testing.T, a app, email, password string) authBody {
	t.Helper()

	w, _ := doRequest(a.router, http.MethodPost, "/api/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login got %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var out authBody
	mustReadJSON(t, w, &out)
	return out
}
