package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/farmhub/internal/cache"
	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTypesRepo struct {
	items     []expensetype.ExpenseType
	listCalls int
	// runs after the list snapshot is taken, before it is returned
	onList func()
}

func (f *fakeTypesRepo) List(ctx context.Context) ([]expensetype.ExpenseType, error) {
	f.listCalls++
	items := append([]expensetype.ExpenseType(nil), f.items...)
	if f.onList != nil {
		f.onList()
	}
	return items, nil
}

func (f *fakeTypesRepo) GetByID(ctx context.Context, id string) (expensetype.ExpenseType, error) {
	return expensetype.ExpenseType{}, expensetype.ErrNotFound
}

func (f *fakeTypesRepo) Create(ctx context.Context, req expensetype.CreateRequest) (expensetype.ExpenseType, error) {
	t := expensetype.NewFromCreateRequest(req)
	f.items = append(f.items, t)
	return t, nil
}

func (f *fakeTypesRepo) Update(ctx context.Context, id string, req expensetype.UpdateRequest) (expensetype.ExpenseType, error) {
	return expensetype.ExpenseType{}, expensetype.ErrNotFound
}

func (f *fakeTypesRepo) Delete(ctx context.Context, id string) error {
	return expensetype.ErrInUse
}

// brokenCache fails every call
type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (brokenCache) Set(ctx context.Context, key string, val []byte) error {
	return errors.New("cache down")
}
func (brokenCache) Delete(ctx context.Context, key string) error {
	return errors.New("cache down")
}

type countingRecorder struct {
	results []string
}

func (c *countingRecorder) ObserveCache(family, result string) {
	c.results = append(c.results, result)
}

func TestExpenseTypesList_BrokenCacheFallsBackToStore(t *testing.T) {
	repo := &fakeTypesRepo{items: []expensetype.ExpenseType{{ID: newUUID(), Name: "Feed"}}}
	rec := &countingRecorder{}
	h := handlers.NewExpenseTypesHandler(repo, brokenCache{}, rec, nil)

	r := gin.New()
	r.GET("/expense-types", h.List)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/expense-types", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Feed")
	}

	assert.Equal(t, 2, repo.listCalls)
	assert.Equal(t, []string{"error", "error"}, rec.results)
}

func TestExpenseTypes_ErrorMapping(t *testing.T) {
	h := handlers.NewExpenseTypesHandler(&fakeTypesRepo{}, nil, nil, nil)

	r := gin.New()
	r.GET("/expense-types/:id", h.GetByID)
	r.PUT("/expense-types/:id", h.Update)
	r.DELETE("/expense-types/:id", h.Delete)

	id := newUUID()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "get_missing", method: http.MethodGet, path: "/expense-types/" + id, want: http.StatusNotFound},
		{name: "get_bad_id", method: http.MethodGet, path: "/expense-types/123", want: http.StatusBadRequest},
		{name: "update_missing", method: http.MethodPut, path: "/expense-types/" + id, body: `{"name":"Fuel"}`, want: http.StatusNotFound},
		{name: "delete_in_use", method: http.MethodDelete, path: "/expense-types/" + id, want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestExpenseTypesList_WriteDuringReadIsNotCached(t *testing.T) {
	repo := &fakeTypesRepo{items: []expensetype.ExpenseType{{ID: newUUID(), Name: "Feed"}}}
	store := cache.NewMemory(time.Minute)
	h := handlers.NewExpenseTypesHandler(repo, store, nil, nil)

	r := gin.New()
	r.GET("/expense-types", h.List)
	r.POST("/expense-types", h.Create)

	// an admin write lands while the first list read is in flight
	repo.onList = func() {
		repo.onList = nil
		req := httptest.NewRequest(http.MethodPost, "/expense-types", strings.NewReader(`{"name":"Fuel"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/expense-types", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Fuel")

	_, cached, err := store.Get(context.Background(), "expense_types:list:v1")
	require.NoError(t, err)
	assert.False(t, cached, "a list read that overlapped a write must not be cached")

	// the next read sees the write and may cache it
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/expense-types", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fuel")

	_, cached, err = store.Get(context.Background(), "expense_types:list:v1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 2, repo.listCalls)
}
