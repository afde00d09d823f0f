// Package ratelimit enforces the session server's two abuse boundaries:
// how many JOIN_GAME attempts an IP may make, and how many messages a
// seated connection may send, before it is throttled or disconnected.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
)

// AbuseLimiter tracks two independent rates: connection attempts per IP
// and messages per connection key. Both share one store; their keys are
// prefixed so the two counters never collide, even for the same key.
type AbuseLimiter struct {
	joinPerIP    *limiter.Limiter
	msgPerConn   *limiter.Limiter
}

// New builds an AbuseLimiter. redisClient may be nil, in which case an
// in-process memory store is used — correct for a single instance, an
// approximation across a fleet (see DESIGN.md).
func New(redisClient *redis.Client, joinRate, msgRate string) (*AbuseLimiter, error) {
	joinLimit, err := limiter.NewRateFromFormatted(joinRate)
	if err != nil {
		return nil, fmt.Errorf("invalid join rate %q: %w", joinRate, err)
	}
	msgLimit, err := limiter.NewRateFromFormatted(msgRate)
	if err != nil {
		return nil, fmt.Errorf("invalid message rate %q: %w", msgRate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "abyssal:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
		store = s
	} else {
		store = memory.NewStore()
	}

	return &AbuseLimiter{
		joinPerIP:  limiter.New(store, joinLimit),
		msgPerConn: limiter.New(store, msgLimit),
	}, nil
}

// AllowJoin reports whether ip may attempt another JOIN_GAME.
func (a *AbuseLimiter) AllowJoin(ctx context.Context, ip string) bool {
	ctxResult, err := a.joinPerIP.Get(ctx, "join:"+ip)
	if err != nil {
		logging.Error(ctx, "join rate limiter store failed, failing open", zap.Error(err))
		return true
	}
	if ctxResult.Reached {
		metrics.RateLimitExceeded.WithLabelValues("join", "ip").Inc()
		return false
	}
	metrics.RateLimitRequests.WithLabelValues("join").Inc()
	return true
}

// AllowMessage reports whether connKey (typically the connection's
// remote address or participant ID) may send another message this
// window. A sustained violator should be disconnected by the caller, not
// merely throttled (see the protocol's sustained-abuse disconnect rule).
func (a *AbuseLimiter) AllowMessage(ctx context.Context, connKey string) bool {
	ctxResult, err := a.msgPerConn.Get(ctx, "msg:"+connKey)
	if err != nil {
		logging.Error(ctx, "message rate limiter store failed, failing open", zap.Error(err))
		return true
	}
	if ctxResult.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_message", "connection").Inc()
		return false
	}
	metrics.RateLimitRequests.WithLabelValues("websocket_message").Inc()
	return true
}
