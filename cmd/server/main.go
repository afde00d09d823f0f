// Command abyssal-server runs the authoritative session server: it
// accepts WebSocket connections, assigns them to Rooms, and relays and
// arbitrates gameplay messages between participants.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/reeftide/abyssal-server/internal/authtoken"
	"github.com/reeftide/abyssal-server/internal/bus"
	"github.com/reeftide/abyssal-server/internal/config"
	"github.com/reeftide/abyssal-server/internal/hub"
	"github.com/reeftide/abyssal-server/internal/logging"
	"github.com/reeftide/abyssal-server/internal/middleware"
	"github.com/reeftide/abyssal-server/internal/ratelimit"
	"github.com/reeftide/abyssal-server/internal/tracing"
)

const (
	defaultJoinRate    = "30-M" // 30 join attempts per minute per IP
	defaultMessageRate = "200-S" // 200 messages per second per connection
	shutdownTimeout    = 10 * time.Second
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 2 for configuration errors, 1 for
// fatal runtime errors, 0 on a clean shutdown.
func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		println("configuration error: " + err.Error())
		return 2
	}

	if err := logging.Initialize(cfg.LogLevel == "debug"); err != nil {
		println("failed to initialize logger: " + err.Error())
		return 2
	}
	ctx := context.Background()

	tp, err := tracing.InitTracer(ctx, "abyssal-server")
	if err != nil {
		logging.Error(ctx, "failed to initialize tracer", zap.Error(err))
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shCtx); err != nil {
			logging.Error(ctx, "tracer shutdown failed", zap.Error(err))
		}
	}()

	var redisBus *bus.Service
	if cfg.RedisEnabled {
		redisBus, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to redis bus", zap.Error(err))
			return 1
		}
		defer redisBus.Close()
	}

	var redisClient *redis.Client
	if redisBus != nil {
		redisClient = redisBus.Client()
	}
	limiter, err := ratelimit.New(redisClient, defaultJoinRate, defaultMessageRate)
	if err != nil {
		logging.Error(ctx, "failed to initialize rate limiter", zap.Error(err))
		return 1
	}

	var signer *authtoken.Signer
	if cfg.RequireJoinToken {
		signer = authtoken.New(cfg.JoinTokenSecret, 5*time.Minute)
	}

	hubCfg := hub.Config{
		RoomCapacity:       cfg.RoomCapacity,
		TickRateHz:         cfg.TickRateHz,
		CleanupGracePeriod: time.Duration(cfg.RoomGraceSeconds) * time.Second,
	}
	if redisBus != nil {
		hubCfg.Bus = redisBus
	}
	h := hub.New(hubCfg)

	allowedOrigins := parseOrigins(cfg.AllowedOrigins)
	server := hub.NewServer(h, limiter, signer, cfg.RequireJoinToken, allowedOrigins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("abyssal-server"))

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))

	server.Register(router)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info(ctx, "server starting", zap.String("listen", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed", zap.Error(err))
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-serveErr:
		return 1
	}
	logging.Info(ctx, "shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shCtx); err != nil {
		logging.Error(ctx, "http server forced to shutdown", zap.Error(err))
	}
	if err := h.Shutdown(shCtx); err != nil {
		logging.Error(ctx, "hub shutdown did not complete cleanly", zap.Error(err))
	}

	logging.Info(ctx, "shutdown complete")
	return 0
}

func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
