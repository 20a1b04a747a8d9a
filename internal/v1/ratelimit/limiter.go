// Package ratelimit throttles the unauthenticated write endpoints (login,
// room creation) using Redis or local memory as the counter store.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/v1/config"
	"github.com/parlorhq/parlor/internal/v1/logging"
)

// Limiter holds the per-endpoint limiter instances.
type Limiter struct {
	login      *limiter.Limiter
	createRoom *limiter.Limiter
	store      limiter.Store
}

// New builds the limiters from the configured rate format strings
// ("<count>-<S|M|H>"). With a Redis client the counters are shared;
// without one they live in process memory.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	loginRate, err := limiter.NewRateFromFormatted(cfg.RateLimitLogin)
	if err != nil {
		return nil, fmt.Errorf("invalid login rate: %w", err)
	}
	roomRate, err := limiter.NewRateFromFormatted(cfg.RateLimitCreateRoom)
	if err != nil {
		return nil, fmt.Errorf("invalid create-room rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "parlor:limiter:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		logging.Info(context.Background(), "Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "Rate limiter using memory store")
	}

	return &Limiter{
		login:      limiter.New(store, loginRate),
		createRoom: limiter.New(store, roomRate),
		store:      store,
	}, nil
}

// Login limits POST /login per client IP.
func (rl *Limiter) Login() gin.HandlerFunc {
	return rl.middleware(rl.login)
}

// CreateRoom limits POST /room per client IP.
func (rl *Limiter) CreateRoom() gin.HandlerFunc {
	return rl.middleware(rl.createRoom)
}

func (rl *Limiter) middleware(instance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lctx, err := instance.Get(ctx, c.ClientIP())
		if err != nil {
			// A broken store must not take the endpoint down; fail open.
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}
		c.Next()
	}
}
