package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds server configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Store        string
	PostgresDSN  string
	RedisAddr    string
	RedisEnabled bool
	// RedisChannel receives a JSON message for every flag lifecycle change.
	RedisChannel       string
	ClickHouseDSN      string
	AnalyticsEnabled   bool
	TokenSecret        string
	TokenTTL           time.Duration
	AllowDirectResolve bool
	ContextWindow      int
	// Per-user limit on assign and resolve calls
	RateLimitEnabled   bool
	RateLimitBurst     int
	RateLimitPerSecond int
	ServiceName        string
	Environment        string
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// ClientConfig configures the REST client used by flagctl and the MCP server.
type ClientConfig struct {
	APIURL    string
	TokenFile string
	Token     string
	// Timeout of zero leaves the transport default in place.
	Timeout       time.Duration
	ContextWindow int
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named. Missing files are ignored; variables already set in the environment
// take precedence.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8080")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.Store = strings.ToLower(getenv("STORE", StorePostgres))
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/flagdesk?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.RedisEnabled = envBool("REDIS_ENABLED", true)
	cfg.RedisChannel = getenv("REDIS_CHANNEL", "flag_updates")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", false)
	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 12*time.Hour)
	cfg.AllowDirectResolve = envBool("ALLOW_DIRECT_RESOLVE", false)
	cfg.ContextWindow = envInt("CONTEXT_WINDOW", 5)
	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", 20)
	cfg.RateLimitPerSecond = envInt("RATE_LIMIT_PER_SECOND", 2)
	cfg.ServiceName = getenv("SERVICE_NAME", "flagdesk")
	cfg.Environment = getenv("ENV", "production")

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// lifecycle events are low volume compared to the API itself
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 10)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 5)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getenv("OTLP_ENDPOINT", "localhost:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// LoadClient parses the client-side environment variables.
func LoadClient() ClientConfig {
	return ClientConfig{
		APIURL:        strings.TrimRight(getenv("FLAGDESK_API_URL", "http://localhost:8080"), "/"),
		TokenFile:     getenv("FLAGDESK_TOKEN_FILE", defaultTokenFile()),
		Token:         os.Getenv("FLAGDESK_TOKEN"),
		Timeout:       envDuration("CLIENT_TIMEOUT", 0),
		ContextWindow: envInt("CONTEXT_WINDOW", 5),
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".flagdesk-token"
	}
	return dir + string(os.PathSeparator) + "flagdesk" + string(os.PathSeparator) + "token"
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
