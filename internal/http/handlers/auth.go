package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/geocoder89/farmhub/internal/http/middlewares"
	"github.com/geocoder89/farmhub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

type TokenIssuer interface {
	Issue(identityID, role string) (token string, expiresAt time.Time, err error)
}

type SessionWriter interface {
	Attach(ctx *gin.Context, token string)
	Clear(ctx *gin.Context)
}

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Compare(ctx context.Context, hash, plain string) error
	CompareDummy(ctx context.Context, plain string) error
}

type AuthHandler struct {
	users   UserStore
	tokens  TokenIssuer
	session SessionWriter
	hasher  PasswordHasher
	log     *slog.Logger
}

func NewAuthHandler(users UserStore, tokens TokenIssuer, session SessionWriter, hasher PasswordHasher, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		session: session,
		hasher:  hasher,
		log:     log,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// No Role field; self-registration always yields RoleUser.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=120"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type authResponse struct {
	Token   string        `json:"token"`
	Message string        `json:"message"`
	User    user.Identity `json:"user"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	hash, err := h.hasher.Hash(cctx, req.Password)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "password_hash_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	now := time.Now().UTC()

	u, err := h.users.Create(cctx, user.User{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Role:         user.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email is already in use", nil)
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "user_create_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	h.startSession(ctx, http.StatusCreated, u.Identity(), "User registered successfully")
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.ErrorContext(ctx.Request.Context(), "user_lookup_failed", "err", err)
			RespondInternal(ctx, "Could not log in")
			return
		}

		// same bcrypt cost as a real miss, so timing does not reveal the email
		if err := h.hasher.CompareDummy(cctx, req.Password); err != nil && !errors.Is(err, security.ErrMismatch) {
			RespondInternal(ctx, "Could not log in")
			return
		}
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid credentials")
		return
	}

	err = h.hasher.Compare(cctx, found.PasswordHash, req.Password)

	if err != nil {
		if errors.Is(err, security.ErrMismatch) {
			RespondUnAuthorized(ctx, "invalid_credentials", "Invalid credentials")
			return
		}
		RespondInternal(ctx, "Could not log in")
		return
	}

	h.startSession(ctx, http.StatusOK, found.Identity(), "Login successful")
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	identity, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Not authorized")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": identity})
}

// Logout only clears the cookie. Tokens are stateless, so a copy of the token
// held elsewhere stays valid until it expires.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.session.Clear(ctx)

	ctx.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func (h *AuthHandler) startSession(ctx *gin.Context, status int, identity user.Identity, message string) {
	token, _, err := h.tokens.Issue(identity.ID, identity.Role)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "token_issue_failed", "err", err)
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.session.Attach(ctx, token)

	ctx.JSON(status, authResponse{
		Token:   token,
		Message: message,
		User:    identity,
	})
}
