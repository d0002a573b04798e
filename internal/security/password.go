package security

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var ErrMismatch = errors.New("password does not match")

// Hasher wraps bcrypt and bounds how many hashes run at once, so a burst of
// logins cannot take every CPU from request handling.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte
}

func NewHasher(cost int, maxConcurrent int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}

	h := &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(maxConcurrent)),
	}

	// compared against when the email is unknown, so that path costs the same
	h.dummy, _ = bcrypt.GenerateFromPassword([]byte("farmhub-dummy-password"), cost)

	return h
}

// Hash hashes a plain text password with bcrypt.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Compare returns nil on match, ErrMismatch on a wrong password, or the
// context error if the wait for a slot was abandoned.
func (h *Hasher) Compare(ctx context.Context, hash, plain string) error {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}

	return err
}

// CompareDummy burns one comparison against a fixed hash and always fails.
func (h *Hasher) CompareDummy(ctx context.Context, plain string) error {
	if err := h.Compare(ctx, string(h.dummy), plain); err != nil && !errors.Is(err, ErrMismatch) {
		return err
	}
	return ErrMismatch
}
