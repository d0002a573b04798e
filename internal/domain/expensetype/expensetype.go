package expensetype

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("expense type not found")
	ErrNameTaken = errors.New("expense type name already exists")
	ErrInUse     = errors.New("expense type is referenced by expenses")
)

type ExpenseType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=80"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

type UpdateRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=80"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

func NewFromCreateRequest(req CreateRequest) ExpenseType {
	now := time.Now().UTC()

	return ExpenseType{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
