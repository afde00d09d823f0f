// Package bus is the optional cross-instance fan-out a Room publishes
// its wire frames to. A single process never needs this: it exists so a
// fleet of session servers can share room events through Redis pub/sub
// without every Room knowing Redis exists.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/metrics"
	"github.com/reeftide/abyssal-server/internal/wire"
)

// Publisher is the interface a Room publishes room events through. It
// matches room.BusService so a *Service satisfies it without an import
// cycle (bus never imports room).
type Publisher interface {
	PublishRoomEvent(ctx context.Context, roomID string, tag wire.MessageTag, payload []byte) error
}

// Service fans a room's wire frames out to every other instance
// subscribed to the same room channel, guarded by a circuit breaker so a
// degraded Redis never blocks a Room's single writer.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client exposes the underlying Redis client so other packages (the
// rate limiter's distributed store, in particular) can share one
// connection pool instead of each dialing their own.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to addr and verifies reachability with a single
// ping before returning, same as the teacher's Redis bus constructor.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis-bus",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	logging.Info(context.Background(), "connected to redis bus", zap.String("addr", addr))
	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// PublishRoomEvent satisfies room.BusService. The raw wire frame
// (tag+payload, already encoded) is republished verbatim on the room's
// channel; subscribers decode it exactly as if it arrived over a socket.
func (s *Service) PublishRoomEvent(ctx context.Context, roomID string, tag wire.MessageTag, payload []byte) error {
	if s == nil || s.client == nil {
		return nil
	}

	channel := fmt.Sprintf("abyssal:room:%s", roomID)
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.Publish(ctx, channel, wire.EncodeFrame(tag, payload)).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "redis circuit breaker open, dropping room event", zap.String("room_id", roomID))
			return nil
		}
		metrics.RedisOperationsTotal.WithLabelValues("publish", "error").Inc()
		logging.Error(ctx, "redis publish failed", zap.String("room_id", roomID), zap.Error(err))
		return err
	}
	metrics.RedisOperationsTotal.WithLabelValues("publish", "ok").Inc()
	return nil
}

// Subscribe starts a background listener for another instance's
// publishes on roomID's channel. handler receives the raw frame exactly
// as PublishRoomEvent sent it; the caller is expected to feed it through
// wire.Decode the same way a socket read would.
func (s *Service) Subscribe(ctx context.Context, roomID string, handler func(frame []byte)) {
	if s == nil || s.client == nil {
		return
	}
	channel := fmt.Sprintf("abyssal:room:%s", roomID)
	pubsub := s.client.Subscribe(ctx, channel)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
}

// Ping reports whether Redis is reachable, used by the /healthz handler.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	return err
}

// Close releases the underlying Redis connection pool.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
