package handlers

import (
	"bytes"
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/auth"
	"github.com/4xmen/wasteless/internal/chat"
	"github.com/4xmen/wasteless/internal/listings"
	"github.com/4xmen/wasteless/internal/media"
)

const apiVersion = "1.0.0"

// Pinger reports whether the datastore is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Services struct {
	Auth     *auth.Service
	Listings *listings.Service
	Chat     *chat.Service
	Store    Pinger
}

type Options struct {
	Environment   string
	CORSOrigins   []string
	MaxUploadSize int64
	// UploadDir is served under /uploads when set.
	UploadDir    string
	LoginRate    limiter.Rate
	RegisterRate limiter.Rate
}

func (o *Options) defaults() {
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = media.DefaultMaxSize
	}
	if o.LoginRate.Limit == 0 {
		o.LoginRate = limiter.Rate{Period: time.Minute, Limit: 5}
	}
	if o.RegisterRate.Limit == 0 {
		o.RegisterRate = limiter.Rate{Period: time.Minute, Limit: 2}
	}
	if len(o.CORSOrigins) == 0 {
		o.CORSOrigins = []string{"*"}
	}
}

// multipartOverhead is the room left for form fields and part headers on
// top of the image itself.
const multipartOverhead = 1 << 20

// bodyLimit rejects bodies larger than limit. Declared lengths are checked up
// front and the body reader stops at limit for chunked uploads.
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			respondError(c, apperr.InvalidRequest(errBodyTooLarge))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func rateLimitMiddleware(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiterContext, err := limiterInstance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limiter error"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiterContext.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limiterContext.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limiterContext.Reset, 10))

		if limiterContext.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w responseBodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// serverErrorLogger records the causes attached with c.Error for every 5xx
// response, together with the body the client received.
func serverErrorLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		blw := &responseBodyWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("server error",
				zap.Int("status", c.Writer.Status()),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
				zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)),
				zap.String("errors", c.Errors.ByType(gin.ErrorTypeAny).String()),
				zap.String("response", strings.TrimSpace(blw.body.String())),
			)
		}
	}
}

func panicRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Any("error", recovered),
			zap.ByteString("stack", debug.Stack()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	cfg.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	return cors.New(cfg)
}

// NewRouter wires every API route onto a fresh gin engine.
func NewRouter(svc Services, opts Options, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.defaults()
	setupValidation()

	if opts.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authHandler := NewAuthHandler(svc.Auth)
	foodHandler := NewFoodHandler(svc.Listings)
	chatHandler := NewChatHandler(svc.Chat)

	router := gin.New()
	router.Use(serverErrorLogger(logger))
	router.Use(requestLogger(logger))
	router.Use(panicRecovery(logger))
	router.Use(corsMiddleware(opts.CORSOrigins))
	router.MaxMultipartMemory = opts.MaxUploadSize

	loginLimiter := limiter.New(memory.NewStore(), opts.LoginRate)
	registerLimiter := limiter.New(memory.NewStore(), opts.RegisterRate)

	requireAuth := authHandler.AuthMiddleware()
	uploadLimit := bodyLimit(opts.MaxUploadSize + multipartOverhead)
	optionalAuth := authHandler.OptionalAuth()

	api := router.Group("/api")

	users := api.Group("/users")
	{
		users.POST("/register", rateLimitMiddleware(registerLimiter), authHandler.Register)
		users.POST("/login", rateLimitMiddleware(loginLimiter), authHandler.Login)
		users.GET("/profile", requireAuth, authHandler.GetProfile)
		users.PUT("/profile", requireAuth, authHandler.UpdateProfile)
		users.GET("", requireAuth, authHandler.GetUsers)
		users.GET("/:id", authHandler.GetUser)
	}

	food := api.Group("/food")
	{
		food.POST("", requireAuth, uploadLimit, foodHandler.Create)
		food.GET("", optionalAuth, foodHandler.List)
		food.GET("/categories", foodHandler.Categories)
		food.GET("/user/:userId", foodHandler.ByUser)
		food.GET("/my-posts", requireAuth, foodHandler.Mine)
		food.GET("/:id", foodHandler.Get)
		food.PUT("/:id", requireAuth, uploadLimit, foodHandler.Update)
		food.DELETE("/:id", requireAuth, foodHandler.Delete)
	}

	chatRoutes := api.Group("/chat", requireAuth)
	{
		chatRoutes.POST("", chatHandler.Send)
		chatRoutes.GET("/conversations", chatHandler.Conversations)
		chatRoutes.GET("/conversation/:foodPostId/:otherUserId", chatHandler.Thread)
		chatRoutes.PUT("/read/:foodPostId/:senderId", chatHandler.MarkRead)
		chatRoutes.GET("/unread", chatHandler.Unread)
		chatRoutes.DELETE("/:messageId", chatHandler.Delete)
	}

	api.GET("/health", func(c *gin.Context) {
		if svc.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := svc.Store.Ping(ctx); err != nil {
				c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "datastore unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"message":     "Wasteless API is running",
			"timestamp":   time.Now().UTC(),
			"environment": opts.Environment,
		})
	})

	api.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome to Wasteless API",
			"version": apiVersion,
			"endpoints": gin.H{
				"users":  "/api/users",
				"food":   "/api/food",
				"chat":   "/api/chat",
				"health": "/api/health",
			},
		})
	})

	if opts.UploadDir != "" {
		router.Static("/uploads", opts.UploadDir)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return router
}
