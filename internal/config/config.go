package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Rest     RestConfig
	Kafka    KafkaConfig
	Monitor  MonitorConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Dir     string
	Service string
	Level   string
}

type StoreConfig struct {
	// Backend is one of memory, file, sql, rest.
	Backend string
	// IDStore is "store" (same backend as orders) or "redis".
	IDStore string
	// Timeout bounds every single persistence call.
	Timeout time.Duration
	FileDir string
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	UsedKey  string
}

type RestConfig struct {
	BaseURL      string
	Instance     string
	APIKey       string
	OrdersTable  string
	HistoryTable string
	UsedIDsTable string
	Timeout      time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	Enabled     bool
	TopicPrefix string
}

type MonitorConfig struct {
	Enabled     bool
	Schedule    string
	WarnPercent int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Dir:     getEnv("LOG_DIR", "logs"),
			Service: getEnv("LOG_SERVICE", "service-orders"),
			Level:   getEnv("LOG_LEVEL", "INFO"),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "file"),
			IDStore: getEnv("ID_STORE", "store"),
			Timeout: getEnvDuration("PERSISTENCE_TIMEOUT", 5*time.Second),
			FileDir: getEnv("STORE_FILE_DIR", "data"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "sqlite"),
			DSN:          getEnv("DB_DSN", "file:service_orders.db?cache=shared"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			UsedKey:  getEnv("REDIS_USED_IDS_KEY", "service_orders:used_ids"),
		},
		Rest: RestConfig{
			BaseURL:      getEnv("REST_BASE_URL", "https://openapi.nocodebackend.com"),
			Instance:     getEnv("REST_INSTANCE", ""),
			APIKey:       getEnv("REST_API_KEY", ""),
			OrdersTable:  getEnv("REST_ORDERS_TABLE", "service_orders"),
			HistoryTable: getEnv("REST_HISTORY_TABLE", "status_history"),
			UsedIDsTable: getEnv("REST_USED_IDS_TABLE", "used_order_ids"),
			Timeout:      getEnvDuration("REST_HTTP_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "servicetracker"),
		},
		Monitor: MonitorConfig{
			Enabled:     getEnvBool("POOL_MONITOR_ENABLED", true),
			Schedule:    getEnv("POOL_MONITOR_SCHEDULE", "@every 1h"),
			WarnPercent: getEnvInt("POOL_WARN_PERCENT", 90),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, e.g. KAFKA_BROKERS=a:9092,b:9092
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
