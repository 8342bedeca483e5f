package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	ClassifierGemini   = "gemini"
	ClassifierDisabled = "disabled"

	PolicyReuseActive  = "reuse_active"
	PolicyAlwaysCreate = "always_create"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	Storage     string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Buffer      BufferConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
	Classifier  ClassifierConfig
	Routing     RoutingConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	SessionTTL time.Duration
}

type BufferConfig struct {
	Enabled      bool
	Path         string
	SyncInterval time.Duration
	BatchSize    int
	MaxRetry     int
	Retention    time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MonitorInterval time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

type ClassifierConfig struct {
	Provider           string
	APIKey             string
	Model              string
	Timeout            time.Duration
	Threshold          float64
	FallbackDepartment string
}

type RoutingConfig struct {
	ConversationPolicy string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the service can boot with only a database URL.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "helpdesk"),
		Environment: getString("APP_ENV", "development"),
		Storage:     strings.ToLower(getString("STORAGE_BACKEND", StoragePostgres)),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "4000"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "helpdesk"),
			User:            getString("DB_USER", "helpdesk"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			Issuer:     getString("JWT_ISSUER", "helpdesk"),
			SessionTTL: getDuration("SESSION_TTL", 12*time.Hour),
		},
		Buffer: BufferConfig{
			Enabled:      getBool("BUFFER_ENABLED", true),
			Path:         getString("BOLTDB_PATH", "./data/buffer.db"),
			SyncInterval: getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
			BatchSize:    getInt("BUFFER_BATCH_SIZE", 50),
			MaxRetry:     getInt("MAX_RETRY_ATTEMPTS", 5),
			Retention:    getDuration("BUFFER_RETENTION", 24*time.Hour),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 20*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
			MonitorInterval: getDuration("MONITOR_INTERVAL", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Classifier: ClassifierConfig{
			Provider:           strings.ToLower(getString("CLASSIFIER_PROVIDER", ClassifierGemini)),
			APIKey:             os.Getenv("GEMINI_API_KEY"),
			Model:              getString("CLASSIFIER_MODEL", "gemini-2.5-flash"),
			Timeout:            getDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
			Threshold:          getFloat("CLASSIFIER_THRESHOLD", 0.5),
			FallbackDepartment: getString("FALLBACK_DEPARTMENT", "General"),
		},
		Routing: RoutingConfig{
			ConversationPolicy: strings.ToLower(getString("CONVERSATION_POLICY", PolicyReuseActive)),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg.Database)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage)
	}
	switch c.Routing.ConversationPolicy {
	case PolicyReuseActive, PolicyAlwaysCreate:
	default:
		return fmt.Errorf("unknown CONVERSATION_POLICY %q", c.Routing.ConversationPolicy)
	}
	switch c.Classifier.Provider {
	case ClassifierGemini, ClassifierDisabled:
	default:
		return fmt.Errorf("unknown CLASSIFIER_PROVIDER %q", c.Classifier.Provider)
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("CLASSIFIER_THRESHOLD must be within (0,1], got %v", c.Classifier.Threshold)
	}
	if strings.TrimSpace(c.Classifier.FallbackDepartment) == "" {
		return fmt.Errorf("FALLBACK_DEPARTMENT must not be empty")
	}
	if c.Auth.JWTSecret == "" && c.Environment == "production" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// PostgresURL returns the configured DSN.
func (d DatabaseConfig) PostgresURL() string {
	if d.URL != "" {
		return d.URL
	}
	return buildPostgresURL(d)
}

func buildPostgresURL(d DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
