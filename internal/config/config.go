package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Sync      SyncConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
	// BaseURL is the relay endpoint advertised to clients, e.g. ws://host:port.
	BaseURL string
}

// DatabaseConfig selects the snapshot store backend. Driver is either
// "sqlite" or "couch".
type DatabaseConfig struct {
	Driver     string
	SQLitePath string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
}

// SyncConfig tunes the client sync controller defaults.
type SyncConfig struct {
	// SettleWindow is how long save triggers are suppressed after a remote
	// update is applied.
	SettleWindow time.Duration
	// MinSnapshotSize is the smallest encoded state worth persisting.
	MinSnapshotSize int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	settleWindow, err := time.ParseDuration(getEnv("SYNC_SETTLE_WINDOW", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_SETTLE_WINDOW: %w", err)
	}

	driver := getEnv("DB_DRIVER", "sqlite")
	if driver != "sqlite" && driver != "couch" {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: must be sqlite or couch", driver)
	}

	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "3001"),
			Host:    getEnv("HOST", "0.0.0.0"),
			Env:     getEnv("ENV", "development"),
			BaseURL: getEnv("RELAY_BASE_URL", "ws://localhost:3001"),
		},
		Database: DatabaseConfig{
			Driver:     driver,
			SQLitePath: getEnv("DB_SQLITE_PATH", "data/snapshots.sqlite3"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5984"),
			User:       getEnv("DB_USER", "admin"),
			Password:   getEnv("DB_PASSWORD", "password"),
			Name:       getEnv("DB_NAME", "collabspace"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
		},
		Sync: SyncConfig{
			SettleWindow:    settleWindow,
			MinSnapshotSize: getEnvAsInt("SYNC_MIN_SNAPSHOT_SIZE", 32),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,PUT,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
