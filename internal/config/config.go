package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Engine   EngineConfig
	Realtime RealtimeConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// StoreConfig selects and configures the persistent auction store
type StoreConfig struct {
	Backend string // "memory" or "sqlite"
	DSN     string // sqlite file path
}

// EngineConfig holds bidding-engine concurrency settings
type EngineConfig struct {
	LaneQueueDepth     int
	LaneEnqueueTimeout time.Duration
	SweepInterval      time.Duration
}

// RealtimeConfig holds websocket connection settings
type RealtimeConfig struct {
	SendBufferSize int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "memory"),
			DSN:     getEnv("STORE_DSN", "auctions.db"),
		},
		Engine: EngineConfig{
			LaneQueueDepth:     getEnvInt("LANE_QUEUE_DEPTH", 64),
			LaneEnqueueTimeout: getEnvDuration("LANE_ENQUEUE_TIMEOUT", 2*time.Second),
			SweepInterval:      getEnvDuration("LIFECYCLE_SWEEP_INTERVAL", 500*time.Millisecond),
		},
		Realtime: RealtimeConfig{
			SendBufferSize: getEnvInt("WS_SEND_BUFFER", 64),
			PingInterval:   getEnvDuration("WS_PING_INTERVAL", 54*time.Second),
			PongWait:       getEnvDuration("WS_PONG_WAIT", 60*time.Second),
			WriteWait:      getEnvDuration("WS_WRITE_WAIT", 10*time.Second),
		},
	}

	if cfg.Store.Backend != "memory" && cfg.Store.Backend != "sqlite" {
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server
func (c ServerConfig) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
