package expense

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("expense not found")
	// ErrUnscoped is returned by stores when called with a zero Scope.
	ErrUnscoped = errors.New("expense query without owner scope")
	ErrBadDate  = errors.New("date must be RFC3339 or YYYY-MM-DD")
)

type Expense struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	TypeID    string    `json:"typeId"`
	TypeName  string    `json:"typeName,omitempty"`
	Reason    string    `json:"reason"`
	Date      time.Time `json:"date"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Scope pins every store call to one owner. The only way to build a non-zero
// Scope is from an authenticated identity.
type Scope struct {
	ownerID string
}

func ScopeFor(id user.Identity) Scope {
	return Scope{ownerID: id.ID}
}

func (s Scope) OwnerID() string {
	return s.ownerID
}

func (s Scope) Valid() bool {
	return s.ownerID != ""
}

// MaxAmount is the largest value NUMERIC(12,2) holds.
const MaxAmount = 9999999999.99

type CreateRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0,lte=9999999999.99"`
	TypeID string  `json:"typeId" binding:"required,uuid"`
	Reason string  `json:"reason" binding:"required,max=500"`
	Date   string  `json:"date" binding:"omitempty,date"`
}

// full update; an omitted date keeps the stored one
type UpdateRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0,lte=9999999999.99"`
	TypeID string  `json:"typeId" binding:"required,uuid"`
	Reason string  `json:"reason" binding:"required,max=500"`
	Date   string  `json:"date" binding:"omitempty,date"`
}

// Changes is the parsed, trimmed form of a create/update body.
type Changes struct {
	Amount float64
	TypeID string
	Reason string
	Date   *time.Time
}

type ListFilter struct {
	TypeID *string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// Offset saturates at math.MaxInt instead of wrapping negative; a page that
// far out is simply empty.
func (f ListFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func (r CreateRequest) Changes() (Changes, error) {
	return buildChanges(r.Amount, r.TypeID, r.Reason, r.Date)
}

func (r UpdateRequest) Changes() (Changes, error) {
	return buildChanges(r.Amount, r.TypeID, r.Reason, r.Date)
}

func buildChanges(amount float64, typeID, reason, date string) (Changes, error) {
	c := Changes{
		Amount: amount,
		TypeID: strings.ToLower(strings.TrimSpace(typeID)),
		Reason: strings.TrimSpace(reason),
	}

	if strings.TrimSpace(date) != "" {
		d, err := ParseDate(date, false)
		if err != nil {
			return Changes{}, err
		}
		c.Date = &d
	}

	return c, nil
}

// NewForOwner builds a new expense from validated changes; date defaults to now.
func NewForOwner(scope Scope, c Changes) Expense {
	now := time.Now().UTC()

	date := now
	if c.Date != nil {
		date = c.Date.UTC()
	}

	return Expense{
		ID:        uuid.NewString(),
		Amount:    c.Amount,
		TypeID:    c.TypeID,
		Reason:    c.Reason,
		Date:      date,
		UserID:    scope.OwnerID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ParseDate accepts RFC3339 or a bare calendar day. With endOfDay a bare day
// resolves to its last nanosecond, so "endDate=2025-01-31" includes the 31st.
func ParseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, ErrBadDate
	}

	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}

	return t.UTC(), nil
}
