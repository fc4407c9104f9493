package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OTEL     OTELConfig
	Log      LogConfig
	Queue    QueueConfig
	Realtime RealtimeConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	// StreamPort is where cmd/sse serves push connections.
	StreamPort     int
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// PoolSize caps command connections; pub/sub subscriptions use their own.
	PoolSize int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env   string
	Level string
}

// QueueConfig holds the queue coordination settings
type QueueConfig struct {
	// Store selects the queue backend: "postgres" or "memory".
	Store string
	// SlotCapacity is the number of appointments a single time slot accepts.
	SlotCapacity int
	DayStart     string
	DayEnd       string
	SlotInterval time.Duration
	// AllowCancelInConsultation permits in_consultation -> cancelled.
	AllowCancelInConsultation bool
	// ListCacheTTL bounds how stale a cached queue listing may be, in seconds.
	ListCacheTTL int
}

// RealtimeConfig holds push channel settings
type RealtimeConfig struct {
	HeartbeatInterval time.Duration
	ClientBuffer      int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			StreamPort:     getEnvAsInt("SSE_PORT", 8081),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "clinic_queue"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 20),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "clinic-queue"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Log: LogConfig{
			Env:   getEnv("APP_ENV", "development"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Queue: QueueConfig{
			Store:                     strings.ToLower(getEnv("QUEUE_STORE", "postgres")),
			SlotCapacity:              getEnvAsInt("QUEUE_SLOT_CAPACITY", 10),
			DayStart:                  getEnv("QUEUE_DAY_START", "07:00"),
			DayEnd:                    getEnv("QUEUE_DAY_END", "16:30"),
			SlotInterval:              getEnvAsDuration("QUEUE_SLOT_INTERVAL", 30*time.Minute),
			AllowCancelInConsultation: getEnvAsBool("QUEUE_ALLOW_CANCEL_IN_CONSULTATION", true),
			ListCacheTTL:              getEnvAsInt("QUEUE_LIST_CACHE_TTL", 5),
		},
		Realtime: RealtimeConfig{
			HeartbeatInterval: getEnvAsDuration("REALTIME_HEARTBEAT_INTERVAL", 30*time.Second),
			ClientBuffer:      getEnvAsInt("REALTIME_CLIENT_BUFFER", 32),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	if c.Queue.Store != "postgres" && c.Queue.Store != "memory" {
		return fmt.Errorf("QUEUE_STORE must be postgres or memory, got %q", c.Queue.Store)
	}
	if c.Queue.SlotCapacity <= 0 {
		return fmt.Errorf("QUEUE_SLOT_CAPACITY must be positive, got %d", c.Queue.SlotCapacity)
	}
	if c.Queue.SlotInterval <= 0 {
		return fmt.Errorf("QUEUE_SLOT_INTERVAL must be positive, got %s", c.Queue.SlotInterval)
	}
	start, err := time.Parse("15:04", c.Queue.DayStart)
	if err != nil {
		return fmt.Errorf("QUEUE_DAY_START must be HH:MM: %w", err)
	}
	end, err := time.Parse("15:04", c.Queue.DayEnd)
	if err != nil {
		return fmt.Errorf("QUEUE_DAY_END must be HH:MM: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("QUEUE_DAY_END (%s) is before QUEUE_DAY_START (%s)", c.Queue.DayEnd, c.Queue.DayStart)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
