package router

import (
	"fmt"
	"net/http"

	"user-service/api/swagger"
	"user-service/internal/adapter/gin/handler"
	"user-service/internal/adapter/gin/middleware"
	"user-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

const swaggerDocPath = "/swagger/user.swagger.json"

// Options carries the optional collaborators of the router.
type Options struct {
	// RedisClient backs the rate limiter; nil disables rate limiting.
	RedisClient *redis.Client
	RateLimit   middleware.RateLimiterConfig
	Mode        string
	// TrustedProxies are the proxies allowed to set the client IP through
	// forwarding headers. Nil keys clients by their peer address.
	TrustedProxies []string
}

// SetupRouter configures and returns a Gin router with all routes and middleware
func SetupRouter(
	userHandler *handler.UserHandler,
	healthHandler *handler.HealthHandler,
	opts Options,
	log *zap.Logger,
) (*gin.Engine, error) {
	mode := opts.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Global middleware
	router.Use(middleware.Recovery(log))
	router.Use(logger.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.RateLimiter(opts.RedisClient, opts.RateLimit, log))

	router.GET("/health", healthHandler.Health)

	docs := gin.WrapH(httpSwagger.Handler(httpSwagger.URL(swaggerDocPath)))
	router.GET("/swagger/*any", func(c *gin.Context) {
		if c.Request.URL.Path == swaggerDocPath {
			c.Data(http.StatusOK, "application/json", swagger.Document)
			return
		}
		docs(c)
	})

	users := router.Group("/user")
	{
		users.POST("/", userHandler.CreateUser)
		users.GET("/users_all/", userHandler.ListUsers)
		users.GET("/:id", userHandler.GetUser)
		users.PUT("/:id", userHandler.UpdateUser)
		users.DELETE("/:id", userHandler.DeleteUser)
	}

	return router, nil
}
