package di

import (
	"context"
	"fmt"

	"user-service/cmd/api/infrastructure"
	"user-service/internal/adapter/cache"
	ginhandler "user-service/internal/adapter/gin/handler"
	"user-service/internal/adapter/gin/middleware"
	ginrouter "user-service/internal/adapter/gin/router"
	"user-service/internal/adapter/repository/cached"
	"user-service/internal/adapter/repository/postgres"
	"user-service/internal/config"
	"user-service/internal/usecase/user"
	redisclient "user-service/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	RedisClient *redisclient.Client // nil when Redis is disabled
	UserUC      user.Usecase
	Router      *gin.Engine
}

// NewContainer creates and initializes all application dependencies
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (*Container, error) {
	// Initialize database
	db, err := infrastructure.NewDatabase(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: l,
		DB:     db,
	}

	// Initialize repository, wrapped with the cache when Redis is enabled
	var repo user.Repository = postgres.NewUserRepoPG(db, l)
	if cfg.Redis.Enabled {
		rdb, err := infrastructure.NewRedisClient(ctx, cfg, l)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		c.RedisClient = rdb

		userCache := cache.NewRedisUserCache(rdb.Client, cfg.Redis.CacheTTLDuration(), l)
		repo = cached.NewUserRepository(repo, userCache, l)
	} else {
		l.Info("redis disabled, serving reads from the database only")
	}

	// Initialize use case
	c.UserUC = user.New(repo, l)

	// Initialize HTTP layer
	c.Router, err = ginrouter.SetupRouter(
		ginhandler.NewUserHandler(c.UserUC, l),
		ginhandler.NewHealthHandler(cfg.Logger.ServiceName, c.healthChecks(), l),
		c.routerOptions(),
		l,
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return c, nil
}

func (c *Container) routerOptions() ginrouter.Options {
	opts := ginrouter.Options{
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerSecond: c.Config.RateLimit.RequestsPerSecond,
			BurstCapacity:     c.Config.RateLimit.BurstCapacity,
			Enabled:           c.Config.RateLimit.Enabled,
		},
		TrustedProxies: c.Config.App.TrustedProxies,
	}
	if c.Config.App.Env != "production" {
		opts.Mode = gin.DebugMode
	}
	if c.RedisClient != nil {
		opts.RedisClient = c.RedisClient.Client
	}
	return opts
}

func (c *Container) healthChecks() map[string]ginhandler.HealthCheck {
	checks := map[string]ginhandler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Ping
	}
	return checks
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	// Close Redis connection
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	// Close database connection
	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close errors: %v", errs)
	}

	return nil
}
