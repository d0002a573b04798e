package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const CookieName = "token"

// Transport moves tokens between requests and responses. Bearer headers serve
// API clients, the cookie serves the browser; both feed the same middleware.
type Transport struct {
	ttl    time.Duration
	secure bool
}

func NewTransport(ttl time.Duration, secure bool) *Transport {
	return &Transport{ttl: ttl, secure: secure}
}

// Extract returns the candidate token, header first. ok is false when the
// request carries none, which is a normal anonymous request and not an error.
func (t *Transport) Extract(r *http.Request) (string, bool) {
	if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return raw, true
	}

	c, err := r.Cookie(CookieName)
	if err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), true
	}

	return "", false
}

func (t *Transport) Attach(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(
		CookieName,
		token,
		int(t.ttl.Seconds()),
		"/",
		"",
		t.secure,
		true, // HttpOnly.
	)
}

func (t *Transport) Clear(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(
		CookieName,
		"",
		-1,
		"/",
		"",
		t.secure,
		true,
	)
}

func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	return raw, true
}
