package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultSystemPrompt is sent with every dispatch unless CHAT_SYSTEM_PROMPT
// overrides it.
const DefaultSystemPrompt = "You are LexIA, a legal assistant specialized in Spanish and European law. " +
	"Always answer clearly and cite legal norms or case law when relevant."

// Store backends.
const (
	StoreSQLite    = "sqlite"
	StoreBolt      = "bolt"
	StoreSurrealDB = "surrealdb"
)

// Config holds all configuration values.
type Config struct {
	// Conversation store
	Store      string
	SQLitePath string
	BoltPath   string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Dispatch
	SettingsFile    string
	SystemPrompt    string
	Principal       string
	ProviderTimeout time.Duration
	MaxTokens       int
	AWSRegion       string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	dataDir := defaultDataDir()
	return Config{
		Store:      strings.ToLower(getEnv("CHAT_STORE", StoreSQLite)),
		SQLitePath: getEnv("CHAT_SQLITE_PATH", filepath.Join(dataDir, "chat.db")),
		BoltPath:   getEnv("CHAT_BOLT_PATH", filepath.Join(dataDir, "chat.bolt")),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "unified_chat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		SettingsFile:    getEnv("CHAT_SETTINGS_FILE", filepath.Join(dataDir, "settings.yaml")),
		SystemPrompt:    getEnv("CHAT_SYSTEM_PROMPT", DefaultSystemPrompt),
		Principal:       getEnv("CHAT_PRINCIPAL", defaultPrincipal()),
		ProviderTimeout: parseDuration(getEnv("CHAT_PROVIDER_TIMEOUT", "60s"), 60*time.Second),
		MaxTokens:       parseInt(getEnv("CHAT_MAX_TOKENS", "1000"), 1000),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		LogFile:  getEnv("CHAT_LOG_FILE", filepath.Join(os.TempDir(), "unified-chat.log")),
		LogLevel: parseLogLevel(getEnv("CHAT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "unified-chat")
	}
	return "."
}

func defaultPrincipal() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
