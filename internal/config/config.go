// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	DBPath      string
	LogLevel    slog.Level
	Redis       RedisConfig
	Room        RoomConfig
	Matchmaking MatchmakingConfig
	WebSocket   WebSocketConfig
	Sweep       SweepConfig
}

// RedisConfig selects the shared pair-record store. An empty Addr falls back
// to SQLite.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RoomConfig tunes room actors.
type RoomConfig struct {
	NextRoundDelay time.Duration
	MailboxSize    int
	PersistTimeout time.Duration
}

// MatchmakingConfig tunes the waiting room.
type MatchmakingConfig struct {
	PairingInterval time.Duration
	PairRecordTTL   time.Duration
}

// WebSocketConfig tunes client connections.
type WebSocketConfig struct {
	SendQueue         int
	WriteTimeout      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
}

// SweepConfig controls the background TTL worker.
type SweepConfig struct {
	Interval    time.Duration
	RoomIdleTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", ""),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/rooms.db"),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Room: RoomConfig{
			NextRoundDelay: getEnvDuration("NEXT_ROUND_DELAY", 10*time.Second),
			MailboxSize:    getEnvInt("ACTOR_MAILBOX_SIZE", 256),
			PersistTimeout: getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
		},
		Matchmaking: MatchmakingConfig{
			PairingInterval: getEnvDuration("PAIRING_INTERVAL", 5*time.Second),
			PairRecordTTL:   getEnvDuration("PAIR_RECORD_TTL", 24*time.Hour),
		},
		WebSocket: WebSocketConfig{
			SendQueue:         getEnvInt("WS_SEND_QUEUE", 64),
			WriteTimeout:      getEnvDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			MaxMessageBytes:   int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 16384)),
			MessagesPerSecond: getEnvFloat("WS_MESSAGES_PER_SECOND", 5),
			Burst:             getEnvInt("WS_BURST", 10),
		},
		Sweep: SweepConfig{
			Interval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			RoomIdleTTL: getEnvDuration("ROOM_IDLE_TTL", 30*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"NEXT_ROUND_DELAY", c.Room.NextRoundDelay},
		{"PERSIST_TIMEOUT", c.Room.PersistTimeout},
		{"PAIRING_INTERVAL", c.Matchmaking.PairingInterval},
		{"PAIR_RECORD_TTL", c.Matchmaking.PairRecordTTL},
		{"WS_WRITE_TIMEOUT", c.WebSocket.WriteTimeout},
		{"SWEEP_INTERVAL", c.Sweep.Interval},
		{"ROOM_IDLE_TTL", c.Sweep.RoomIdleTTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be > 0", d.name)
		}
	}
	if c.Room.MailboxSize <= 0 {
		return fmt.Errorf("ACTOR_MAILBOX_SIZE must be > 0")
	}
	if c.WebSocket.SendQueue <= 0 {
		return fmt.Errorf("WS_SEND_QUEUE must be > 0")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if c.WebSocket.MessagesPerSecond <= 0 || c.WebSocket.Burst <= 0 {
		return fmt.Errorf("WS_MESSAGES_PER_SECOND and WS_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
