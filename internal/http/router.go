package http

import (
	"log/slog"

	"github.com/geocoder89/farmhub/internal/auth"
	"github.com/geocoder89/farmhub/internal/cache"
	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/domain/user"
	"github.com/geocoder89/farmhub/internal/http/handlers"
	"github.com/geocoder89/farmhub/internal/http/middlewares"
	"github.com/geocoder89/farmhub/internal/observability"
	"github.com/geocoder89/farmhub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "farmhub-api"

type UserRepo interface {
	handlers.UserStore
	middlewares.IdentityLoader
}

// Deps is everything the router wires; main builds it once per process and
// tests build it over sqlite or fakes.
type Deps struct {
	Config       config.Config
	Log          *slog.Logger
	Prom         *observability.Prom
	Metrics      prometheus.Gatherer
	Tokens       *auth.Manager
	Transport    *auth.Transport
	Hasher       *security.Hasher
	Users        UserRepo
	Expenses     handlers.ExpenseStore
	ExpenseTypes handlers.ExpenseTypeStore
	Cache        cache.Store
	ReadyChecks  map[string]handlers.Pinger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != config.EnvDev {
		gin.SetMode(gin.ReleaseMode)
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.SecurityHeaders(d.Config.IsProd()))
	r.Use(middlewares.CORS(d.Config.CORSAllowedOrigins))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))

	// ops
	health := handlers.NewHealthHandler(d.ReadyChecks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Metrics != nil {
		r.GET("/metrics", observability.MetricsHandler(d.Metrics))
	}
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	// a nil *Prom must not become a non-nil interface holding nil
	var recorder middlewares.DecisionRecorder
	var cacheRecorder handlers.CacheRecorder
	if d.Prom != nil {
		recorder = d.Prom
		cacheRecorder = d.Prom
	}

	authMW := middlewares.NewAuthMiddleware(d.Tokens, d.Transport, d.Users, log, recorder)

	api := r.Group("/api")
	api.Use(middlewares.MaxBodyBytes(d.Config.MaxBodyBytes))
	api.Use(middlewares.RequireJSON())

	authHandler := handlers.NewAuthHandler(d.Users, d.Tokens, d.Transport, d.Hasher, log)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authMW.Require(middlewares.AnyRole()), authHandler.Me)
	}

	expensesHandler := handlers.NewExpensesHandler(d.Expenses, log)
	expenses := api.Group("/expenses", authMW.Require(middlewares.Roles(user.RoleUser, user.RoleAdmin)))
	{
		expenses.POST("", expensesHandler.Create)
		expenses.GET("", expensesHandler.List)
		expenses.GET("/:id", expensesHandler.GetByID)
		expenses.PUT("/:id", expensesHandler.Update)
		expenses.DELETE("/:id", expensesHandler.Delete)
	}

	typesHandler := handlers.NewExpenseTypesHandler(d.ExpenseTypes, d.Cache, cacheRecorder, log)
	adminOnly := authMW.Require(middlewares.Roles(user.RoleAdmin))
	types := api.Group("/expense-types")
	{
		types.GET("", authMW.Require(middlewares.AnyRole()), typesHandler.List)
		types.GET("/:id", authMW.Require(middlewares.AnyRole()), typesHandler.GetByID)
		types.POST("", adminOnly, typesHandler.Create)
		types.PUT("/:id", adminOnly, typesHandler.Update)
		types.DELETE("/:id", adminOnly, typesHandler.Delete)
	}

	return r
}
