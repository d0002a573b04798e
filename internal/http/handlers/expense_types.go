package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/geocoder89/farmhub/internal/cache"
	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/gin-gonic/gin"
)

const expenseTypesListKey = "expense_types:list:v1"

type ExpenseTypeStore interface {
	List(ctx context.Context) ([]expensetype.ExpenseType, error)
	GetByID(ctx context.Context, id string) (expensetype.ExpenseType, error)
	Create(ctx context.Context, req expensetype.CreateRequest) (expensetype.ExpenseType, error)
	Update(ctx context.Context, id string, req expensetype.UpdateRequest) (expensetype.ExpenseType, error)
	Delete(ctx context.Context, id string) error
}

type CacheRecorder interface {
	ObserveCache(family, result string)
}

type ExpenseTypesHandler struct {
	repo     ExpenseTypeStore
	cache    cache.Store
	recorder CacheRecorder
	log      *slog.Logger

	// bumped by every write before the cache entry is dropped; a list read
	// that overlapped a write must not put its result back
	generation atomic.Uint64
}

func NewExpenseTypesHandler(repo ExpenseTypeStore, c cache.Store, recorder CacheRecorder, log *slog.Logger) *ExpenseTypesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ExpenseTypesHandler{repo: repo, cache: c, recorder: recorder, log: log}
}

func (h *ExpenseTypesHandler) observeCache(result string) {
	if h.recorder != nil {
		h.recorder.ObserveCache("expense_types", result)
	}
}

// GET /api/expense-types

func (h *ExpenseTypesHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	// a broken cache degrades to a store read, never to an error
	if h.cache != nil {
		body, ok, err := h.cache.Get(cctx, expenseTypesListKey)
		switch {
		case err != nil:
			h.observeCache("error")
			h.log.WarnContext(ctx.Request.Context(), "cache_get_failed", "key", expenseTypesListKey, "err", err)
		case ok:
			h.observeCache("hit")
			RespondRawJSONWithETag(ctx, http.StatusOK, body)
			return
		default:
			h.observeCache("miss")
		}
	}

	gen := h.generation.Load()

	items, err := h.repo.List(cctx)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "expense_type_list_failed", "err", err)
		RespondInternal(ctx, "Could not list expense types")
		return
	}

	body, err := json.Marshal(gin.H{
		"items": items,
		"count": len(items),
	})
	if err != nil {
		RespondInternal(ctx, "Could not list expense types")
		return
	}

	h.storeList(ctx, gen, body)

	RespondRawJSONWithETag(ctx, http.StatusOK, body)
}

// storeList caches body only if no write happened since gen was read. The
// second check catches a write whose Delete ran just before our Set.
// Across replicas sharing Redis the counter is local, so a concurrent write
// on another replica can leave a stale list cached for up to CACHE_TTL.
func (h *ExpenseTypesHandler) storeList(ctx *gin.Context, gen uint64, body []byte) {
	if h.cache == nil || h.generation.Load() != gen {
		return
	}

	cctx, cancel := config.WithTimeout(context.WithoutCancel(ctx.Request.Context()), time.Second)
	defer cancel()

	if err := h.cache.Set(cctx, expenseTypesListKey, body); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "cache_set_failed", "key", expenseTypesListKey, "err", err)
		return
	}

	if h.generation.Load() != gen {
		_ = h.cache.Delete(cctx, expenseTypesListKey)
	}
}

// GET /api/expense-types/:id

func (h *ExpenseTypesHandler) GetByID(ctx *gin.Context) {
	id, ok := expenseTypeIDParam(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	t, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, expensetype.ErrNotFound) {
			RespondNotFound(ctx, "Expense type not found")
			return
		}
		RespondInternal(ctx, "Could not fetch expense type")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, t)
}

// POST /api/expense-types (admin)

func (h *ExpenseTypesHandler) Create(ctx *gin.Context) {
	var req expensetype.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	t, err := h.repo.Create(cctx, req)

	if err != nil {
		if errors.Is(err, expensetype.ErrNameTaken) {
			RespondConflict(ctx, "name_taken", "An expense type with this name already exists")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "expense_type_create_failed", "err", err)
		RespondInternal(ctx, "Could not create expense type")
		return
	}

	h.invalidate(ctx)
	ctx.JSON(http.StatusCreated, t)
}

// PUT /api/expense-types/:id (admin)

func (h *ExpenseTypesHandler) Update(ctx *gin.Context) {
	id, ok := expenseTypeIDParam(ctx)
	if !ok {
		return
	}

	var req expensetype.UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	t, err := h.repo.Update(cctx, id, req)

	if err != nil {
		switch {
		case errors.Is(err, expensetype.ErrNotFound):
			RespondNotFound(ctx, "Expense type not found")
		case errors.Is(err, expensetype.ErrNameTaken):
			RespondConflict(ctx, "name_taken", "An expense type with this name already exists")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "expense_type_update_failed", "err", err)
			RespondInternal(ctx, "Could not update expense type")
		}
		return
	}

	h.invalidate(ctx)
	ctx.JSON(http.StatusOK, t)
}

// DELETE /api/expense-types/:id (admin)

func (h *ExpenseTypesHandler) Delete(ctx *gin.Context) {
	id, ok := expenseTypeIDParam(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	err := h.repo.Delete(cctx, id)

	if err != nil {
		switch {
		case errors.Is(err, expensetype.ErrNotFound):
			RespondNotFound(ctx, "Expense type not found")
		case errors.Is(err, expensetype.ErrInUse):
			RespondConflict(ctx, "type_in_use", "Expense type is still used by expenses")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "expense_type_delete_failed", "err", err)
			RespondInternal(ctx, "Could not delete expense type")
		}
		return
	}

	h.invalidate(ctx)
	ctx.Status(http.StatusNoContent)
}

func (h *ExpenseTypesHandler) invalidate(ctx *gin.Context) {
	h.generation.Add(1)

	if h.cache == nil {
		return
	}
	// detached: the write already committed even if the client has gone
	cctx, cancel := config.WithTimeout(context.WithoutCancel(ctx.Request.Context()), time.Second)
	defer cancel()

	if err := h.cache.Delete(cctx, expenseTypesListKey); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "cache_invalidate_failed", "key", expenseTypesListKey, "err", err)
	}
}

func expenseTypeIDParam(ctx *gin.Context) (string, bool) {
	id := strings.TrimSpace(ctx.Param("id"))
	if !isUUID(id) {
		RespondFieldErrors(ctx, "Invalid id", FieldError{Field: "id", Rule: "uuid"})
		return "", false
	}
	return strings.ToLower(id), true
}
