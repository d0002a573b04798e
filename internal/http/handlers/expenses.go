package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/domain/expense"
	"github.com/geocoder89/farmhub/internal/domain/expensetype"
	"github.com/geocoder89/farmhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

const (
	defaultExpensePage  = 1
	defaultExpenseLimit = 5
	maxExpenseLimit     = 100

	// past this the offset no longer fits in an int
	maxExpensePage = math.MaxInt / maxExpenseLimit
)

// Every method takes the owner Scope; handlers can only build one from the
// authenticated identity.
type ExpenseStore interface {
	Create(ctx context.Context, scope expense.Scope, c expense.Changes) (expense.Expense, error)
	GetByID(ctx context.Context, scope expense.Scope, id string) (expense.Expense, error)
	List(ctx context.Context, scope expense.Scope, f expense.ListFilter) ([]expense.Expense, int, error)
	Update(ctx context.Context, scope expense.Scope, id string, c expense.Changes) (expense.Expense, error)
	Delete(ctx context.Context, scope expense.Scope, id string) error
}

type ExpensesHandler struct {
	repo ExpenseStore
	log  *slog.Logger
}

func NewExpensesHandler(repo ExpenseStore, log *slog.Logger) *ExpensesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ExpensesHandler{repo: repo, log: log}
}

func scopeFrom(ctx *gin.Context) (expense.Scope, bool) {
	identity, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		return expense.Scope{}, false
	}
	return expense.ScopeFor(identity), true
}

// requireScope answers 401 itself when no identity is bound; routes mounted
// without Require end up here.
func requireScope(ctx *gin.Context) (expense.Scope, bool) {
	scope, ok := scopeFrom(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Not authorized")
		return expense.Scope{}, false
	}
	return scope, true
}

func expenseIDParam(ctx *gin.Context) (string, bool) {
	id := strings.TrimSpace(ctx.Param("id"))
	if !isUUID(id) {
		RespondFieldErrors(ctx, "Invalid id", FieldError{Field: "id", Rule: "uuid"})
		return "", false
	}
	return strings.ToLower(id), true
}

// POST /api/expenses

func (h *ExpensesHandler) Create(ctx *gin.Context) {
	scope, ok := requireScope(ctx)
	if !ok {
		return
	}

	var req expense.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	changes, err := req.Changes()
	if err != nil {
		RespondFieldErrors(ctx, "Invalid request body", FieldError{Field: "date", Rule: "date"})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	e, err := h.repo.Create(cctx, scope, changes)

	if err != nil {
		if errors.Is(err, expensetype.ErrNotFound) {
			RespondError(ctx, http.StatusBadRequest, "invalid_type", "Expense type does not exist", nil)
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "expense_create_failed", "err", err)
		RespondInternal(ctx, "Could not create expense")
		return
	}

	ctx.JSON(http.StatusCreated, e)
}

// GET /api/expenses?page=1&limit=5&type=<uuid>&startDate=2025-01-01&endDate=2025-01-31

func (h *ExpensesHandler) List(ctx *gin.Context) {
	scope, ok := requireScope(ctx)
	if !ok {
		return
	}

	filter, ok := parseExpenseFilter(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	items, total, err := h.repo.List(cctx, scope, filter)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "expense_list_failed", "err", err)
		RespondInternal(ctx, "Could not list expenses")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":      items,
		"count":      len(items),
		"total":      total,
		"page":       filter.Page,
		"limit":      filter.Limit,
		"totalPages": expense.TotalPages(total, filter.Limit),
	})
}

func parseExpenseFilter(ctx *gin.Context) (expense.ListFilter, bool) {
	page, ok := parseIntDefault(ctx.Query("page"), defaultExpensePage)
	if !ok || page < 1 || page > maxExpensePage {
		RespondFieldErrors(ctx, "Invalid query parameters", FieldError{Field: "page", Rule: "range", Param: fmt.Sprintf("1 %d", maxExpensePage)})
		return expense.ListFilter{}, false
	}

	limit, ok := parseIntDefault(ctx.Query("limit"), defaultExpenseLimit)
	if !ok || limit < 1 || limit > maxExpenseLimit {
		RespondFieldErrors(ctx, "Invalid query parameters", FieldError{Field: "limit", Rule: "range", Param: fmt.Sprintf("1 %d", maxExpenseLimit)})
		return expense.ListFilter{}, false
	}

	filter := expense.ListFilter{Page: page, Limit: limit}

	if t := strings.TrimSpace(ctx.Query("type")); t != "" {
		if !isUUID(t) {
			RespondFieldErrors(ctx, "Invalid query parameters", FieldError{Field: "type", Rule: "uuid"})
			return expense.ListFilter{}, false
		}
		t = strings.ToLower(t)
		filter.TypeID = &t
	}

	if s := ctx.Query("startDate"); s != "" {
		from, err := expense.ParseDate(s, false)
		if err != nil {
			RespondFieldErrors(ctx, "Invalid query parameters", FieldError{Field: "startDate", Rule: "date"})
			return expense.ListFilter{}, false
		}
		filter.From = &from
	}

	if s := ctx.Query("endDate"); s != "" {
		to, err := expense.ParseDate(s, true)
		if err != nil {
			RespondFieldErrors(ctx, "Invalid query parameters", FieldError{Field: "endDate", Rule: "date"})
			return expense.ListFilter{}, false
		}
		filter.To = &to
	}

	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		RespondFieldErrors(ctx, "Invalid query parameters", FieldError{Field: "startDate", Rule: "order", Param: "endDate"})
		return expense.ListFilter{}, false
	}

	return filter, true
}

// GET /api/expenses/:id

func (h *ExpensesHandler) GetByID(ctx *gin.Context) {
	scope, ok := requireScope(ctx)
	if !ok {
		return
	}

	id, ok := expenseIDParam(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	e, err := h.repo.GetByID(cctx, scope, id)

	if err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			RespondNotFound(ctx, "Expense not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "expense_get_failed", "err", err)
		RespondInternal(ctx, "Could not fetch expense")
		return
	}

	ctx.JSON(http.StatusOK, e)
}

// PUT /api/expenses/:id

func (h *ExpensesHandler) Update(ctx *gin.Context) {
	scope, ok := requireScope(ctx)
	if !ok {
		return
	}

	id, ok := expenseIDParam(ctx)
	if !ok {
		return
	}

	var req expense.UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	changes, err := req.Changes()
	if err != nil {
		RespondFieldErrors(ctx, "Invalid request body", FieldError{Field: "date", Rule: "date"})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	e, err := h.repo.Update(cctx, scope, id, changes)

	if err != nil {
		switch {
		case errors.Is(err, expense.ErrNotFound):
			RespondNotFound(ctx, "Expense not found")
		case errors.Is(err, expensetype.ErrNotFound):
			RespondError(ctx, http.StatusBadRequest, "invalid_type", "Expense type does not exist", nil)
		default:
			h.log.ErrorContext(ctx.Request.Context(), "expense_update_failed", "err", err)
			RespondInternal(ctx, "Could not update expense")
		}
		return
	}

	ctx.JSON(http.StatusOK, e)
}

// DELETE /api/expenses/:id

func (h *ExpensesHandler) Delete(ctx *gin.Context) {
	scope, ok := requireScope(ctx)
	if !ok {
		return
	}

	id, ok := expenseIDParam(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	err := h.repo.Delete(cctx, scope, id)

	if err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			RespondNotFound(ctx, "Expense not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "expense_delete_failed", "err", err)
		RespondInternal(ctx, "Could not delete expense")
		return
	}

	ctx.Status(http.StatusNoContent)
}
