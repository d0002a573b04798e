package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS admits the browser frontend with credentials so the token cookie is
// sent cross-origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	// cors.New panics on an empty origin list; same-origin only then
	if len(allowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = allowedOrigins
	cfg.AllowCredentials = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader, "ETag"}
	cfg.MaxAge = 12 * time.Hour

	return cors.New(cfg)
}
