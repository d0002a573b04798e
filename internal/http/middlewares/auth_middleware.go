package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/farmhub/internal/actorctx"
	"github.com/geocoder89/farmhub/internal/auth"
	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Keep these interfaces small so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type TokenExtractor interface {
	Extract(r *http.Request) (string, bool)
}

type IdentityLoader interface {
	GetIdentity(ctx context.Context, id string) (user.Identity, error)
}

type DecisionRecorder interface {
	ObserveAuthDecision(outcome, reason string)
}

type Outcome int

const (
	Authorized Outcome = iota
	Unauthenticated
	Forbidden
	Internal
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Decision is the result of running one request through the pipeline.
// Identity is only set when Outcome is Authorized. Reason is for server logs
// and never reaches the client.
type Decision struct {
	Outcome  Outcome
	Identity user.Identity
	Reason   string
	Err      error
}

const defaultLookupTimeout = 2 * time.Second

type AuthMiddleware struct {
	tokens    TokenVerifier
	transport TokenExtractor
	users     IdentityLoader
	log       *slog.Logger
	recorder  DecisionRecorder

	lookupTimeout time.Duration
}

func NewAuthMiddleware(tokens TokenVerifier, transport TokenExtractor, users IdentityLoader, log *slog.Logger, recorder DecisionRecorder) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &AuthMiddleware{
		tokens:        tokens,
		transport:     transport,
		users:         users,
		log:           log,
		recorder:      recorder,
		lookupTimeout: defaultLookupTimeout,
	}
}

// Authenticate walks extract → verify → load → authorize and stops at the
// first failing step. The identity lookup is the only blocking call and it
// inherits ctx, so a disconnected client abandons it.
func (m *AuthMiddleware) Authenticate(ctx context.Context, r *http.Request, policy RoleSet) Decision {
	raw, ok := m.transport.Extract(r)
	if !ok {
		return Decision{Outcome: Unauthenticated, Reason: "no_token"}
	}

	identityID, err := m.tokens.Verify(raw)
	if err != nil {
		return Decision{Outcome: Unauthenticated, Reason: auth.Reason(err), Err: err}
	}

	lctx, cancel := config.WithTimeout(ctx, m.lookupTimeout)
	defer cancel()

	identity, err := m.users.GetIdentity(lctx, identityID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Decision{Outcome: Unauthenticated, Reason: "identity_not_found", Err: err}
		}
		return Decision{Outcome: Internal, Reason: "identity_lookup_failed", Err: err}
	}

	if !policy.Allows(identity.Role) {
		return Decision{Outcome: Forbidden, Reason: "role_not_allowed"}
	}

	return Decision{Outcome: Authorized, Identity: identity}
}

// Require adapts Authenticate to gin. It panics at route setup when policy
// was not built with Roles or AnyRole.
func (m *AuthMiddleware) Require(policy RoleSet) gin.HandlerFunc {
	if !policy.declared {
		panic("middlewares: route policy must be declared with Roles(...) or AnyRole()")
	}

	return func(c *gin.Context) {
		d := m.Authenticate(c.Request.Context(), c.Request, policy)
		m.observe(c, policy, d)

		switch d.Outcome {
		case Authorized:
			c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), d.Identity))
			c.Set(CtxUserID, d.Identity.ID)
			c.Set(CtxRole, d.Identity.Role)
			c.Next()
		case Forbidden:
			abortWithError(c, http.StatusForbidden, "forbidden", "Your role does not have access to this resource")
		case Internal:
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Could not authenticate request")
		default:
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Not authorized")
		}
	}
}

func (m *AuthMiddleware) observe(c *gin.Context, policy RoleSet, d Decision) {
	if m.recorder != nil {
		m.recorder.ObserveAuthDecision(d.Outcome.String(), d.Reason)
	}

	if d.Outcome == Authorized {
		return
	}

	attrs := []any{
		"outcome", d.Outcome.String(),
		"reason", d.Reason,
		"route", c.FullPath(),
		"policy", policy.String(),
		"request_id", c.GetString(CtxRequestID),
	}
	if d.Err != nil {
		attrs = append(attrs, "err", d.Err.Error())
	}

	ctx := c.Request.Context()
	switch d.Outcome {
	case Internal:
		m.log.ErrorContext(ctx, "auth_failed", attrs...)
	case Forbidden:
		m.log.WarnContext(ctx, "auth_rejected", attrs...)
	default:
		m.log.InfoContext(ctx, "auth_rejected", attrs...)
	}
}

// Optional helpers so handlers don't need to know the magic keys.

func IdentityFromContext(c *gin.Context) (user.Identity, bool) {
	return actorctx.IdentityFrom(c.Request.Context())
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	return actorctx.UserIDFrom(c.Request.Context())
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}
