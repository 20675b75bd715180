// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-dm-backend/docs"
	"github.com/tbourn/go-dm-backend/internal/auth"
	"github.com/tbourn/go-dm-backend/internal/config"
	"github.com/tbourn/go-dm-backend/internal/http/handlers"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// Deps are the long-lived collaborators the routes are built from.
type Deps struct {
	Store  store.Store
	Tokens *auth.Manager
	Hasher services.PasswordHasher
	// Redis enables the shared rate limiter; nil uses the in-process one.
	Redis redis.Scripter
}

var (
	allowMethods  = []string{"GET", "POST", "PATCH", "OPTIONS"}
	allowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders = []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed,
		"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//
// Under the API base path, authenticated routes then run JWTAuth, the
// idempotency validator and the rate limiter, in that order, so replays are
// recognized before a token is spent.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", health(d.Store))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← store
	h := handlers.New(handlers.Deps{
		Users:          services.NewUserService(d.Store, d.Hasher),
		Chats:          services.NewChatService(d.Store, d.Store, cfg.AggregateConcurrency),
		Messages:       services.NewMessageService(d.Store, d.Store, cfg.MaxContentRunes),
		Tokens:         d.Tokens,
		Idempotency:    d.Store,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	limit := rateLimiter(d.Redis, cfg.Rate)
	gz := gzip.Gzip(gzip.DefaultCompression)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		public := api.Group("", limit)
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
	}
	{
		authed := api.Group("",
			middleware.JWTAuth(d.Tokens),
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, d.Store.GetIdempotency),
			limit,
		)
		authed.POST("/logout", h.Logout)
		authed.GET("/user", h.Me)
		authed.PATCH("/user/profile", h.UpdateProfile)
		authed.GET("/users", gz, h.ListUsers)
		authed.GET("/users/:id", h.GetUser)
		authed.GET("/chats", gz, h.ListChats)
		authed.GET("/messages/:userId", gz, h.ListMessages)
		authed.POST("/messages", h.SendMessage)
	}
}

// rateLimiter picks the shared Redis limiter when a client is configured and
// the in-process token bucket otherwise.
func rateLimiter(rdb redis.Scripter, cfg config.RateConfig) gin.HandlerFunc {
	if rdb != nil {
		return middleware.RedisRateLimit(rdb, middleware.RedisRateLimitConfig{
			RequestsPerMinute: cfg.PerMinute,
		})
	}
	return middleware.NewRateLimiter(cfg.RPS, cfg.Burst, middleware.KeyByUserOrIP()).Handler()
}

// health reports liveness plus whether the store answers a ping.
func health(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health check: store ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": st.Backend()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": st.Backend()})
	}
}

// corsMiddleware allows every origin when origins is empty and only the
// listed ones otherwise. Credentials are never allowed: tokens travel in the
// Authorization header, not cookies.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     allowMethods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Reads past the cap fail, which binding reports as a 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
