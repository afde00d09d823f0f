// Package config validates the session server's environment/flag
// configuration, accumulating every problem found before reporting so an
// operator sees all misconfigurations in one pass instead of fixing them
// one at a time.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds validated server configuration.
type Config struct {
	Listen             string
	RoomCapacity       int
	TickRateHz         int
	RedisAddr          string
	RedisEnabled       bool
	RedisPassword      string
	LogLevel           string
	RequireJoinToken   bool
	JoinTokenSecret    string
	RoomGraceSeconds   int
	AllowedOrigins     string
}

const (
	defaultListen           = ":8080"
	defaultRoomCapacity     = 32
	defaultTickRateHz       = 20
	defaultRoomGraceSeconds = 30
	minRoomCapacity         = 1
	maxRoomCapacity         = 256
	minTickRateHz           = 1
	maxTickRateHz           = 60
)

// Load reads a .env file if present (never required — godotenv.Load
// returning an error for a missing file is not fatal), then parses flags
// and environment variables into a validated Config.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("abyssal-server", flag.ContinueOnError)
	listen := fs.String("listen", getEnvOrDefault("LISTEN_ADDR", defaultListen), "address to listen on")
	roomCapacity := fs.Int("room-capacity", getEnvIntOrDefault("ROOM_CAPACITY", defaultRoomCapacity), "max participants per room")
	tickRate := fs.Int("tick-rate", getEnvIntOrDefault("TICK_RATE_HZ", defaultTickRateHz), "room broadcast tick rate in Hz")
	redisAddr := fs.String("redis-addr", os.Getenv("REDIS_ADDR"), "optional Redis address for cross-instance fan-out")
	requireJoinToken := fs.Bool("require-join-token", os.Getenv("REQUIRE_JOIN_TOKEN") == "true", "require a signed reconnect token on the WebSocket upgrade")
	logLevel := fs.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	roomGrace := fs.Int("room-grace-seconds", getEnvIntOrDefault("ROOM_GRACE_SECONDS", defaultRoomGraceSeconds), "seconds an empty room is kept before teardown")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Listen:           *listen,
		RoomCapacity:     *roomCapacity,
		TickRateHz:       *tickRate,
		RedisAddr:        *redisAddr,
		RedisEnabled:     *redisAddr != "",
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		LogLevel:         *logLevel,
		RequireJoinToken: *requireJoinToken,
		JoinTokenSecret:  os.Getenv("JOIN_TOKEN_SECRET"),
		RoomGraceSeconds: *roomGrace,
		AllowedOrigins:   os.Getenv("ALLOWED_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// validate accumulates every configuration problem and reports them
// together, rather than failing on the first one found.
func (cfg *Config) validate() error {
	var errs []string

	if cfg.RoomCapacity < minRoomCapacity || cfg.RoomCapacity > maxRoomCapacity {
		errs = append(errs, fmt.Sprintf("room-capacity must be between %d and %d (got %d)", minRoomCapacity, maxRoomCapacity, cfg.RoomCapacity))
	}
	if cfg.TickRateHz < minTickRateHz || cfg.TickRateHz > maxTickRateHz {
		errs = append(errs, fmt.Sprintf("tick-rate must be between %d and %d (got %d)", minTickRateHz, maxTickRateHz, cfg.TickRateHz))
	}
	if cfg.RequireJoinToken && cfg.JoinTokenSecret == "" {
		errs = append(errs, "JOIN_TOKEN_SECRET is required when --require-join-token is set")
	}
	if cfg.RequireJoinToken && len(cfg.JoinTokenSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JOIN_TOKEN_SECRET must be at least 32 characters (got %d)", len(cfg.JoinTokenSecret)))
	}
	if cfg.RedisEnabled && !isValidHostPort(cfg.RedisAddr) {
		errs = append(errs, fmt.Sprintf("redis-addr must be in format 'host:port' (got %q)", cfg.RedisAddr))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log-level must be one of debug, info, warn, error (got %q)", cfg.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration invalid:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func logValidatedConfig(cfg *Config) {
	slog.Info("configuration validated",
		"listen", cfg.Listen,
		"room_capacity", cfg.RoomCapacity,
		"tick_rate_hz", cfg.TickRateHz,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"require_join_token", cfg.RequireJoinToken,
		"join_token_secret", redactSecret(cfg.JoinTokenSecret),
		"log_level", cfg.LogLevel,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return ""
		}
		return "***"
	}
	return secret[:8] + "***"
}
