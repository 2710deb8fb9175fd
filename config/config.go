package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	HTTP      ServerConfig
	MySQL     MySQLConfig
	Log       LogConfig
	Stripe    StripeConfig
	Downloads DownloadsConfig
	Notify    NotifyConfig
	Jobs      JobsConfig
}

type AppConfig struct {
	ServiceName string
	AdminAPIKey string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type StripeConfig struct {
	WebhookSecret             string
	ConnectWebhookSecret      string
	SignatureToleranceSeconds int64
}

// Secrets returns every webhook secret the verifier should try, primary
// first.
func (c StripeConfig) Secrets() []string {
	secrets := []string{c.WebhookSecret}
	if c.ConnectWebhookSecret != "" {
		secrets = append(secrets, c.ConnectWebhookSecret)
	}
	return secrets
}

type DownloadsConfig struct {
	EventRetention time.Duration
	PurgeBatchSize int32
}

type NotifyConfig struct {
	URL           string
	QueueSize     int
	MaxAttempts   int
	RetryInterval time.Duration
	HTTPTimeout   time.Duration
}

type JobsConfig struct {
	PurgeInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "downloads-service"),
			AdminAPIKey: getEnv("APP_ADMIN_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stripe: StripeConfig{
			WebhookSecret:             webhookSecret,
			ConnectWebhookSecret:      getEnv("STRIPE_CONNECT_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
		},
		Downloads: DownloadsConfig{
			EventRetention: getHoursEnv("DOWNLOADS_EVENT_RETENTION_HOURS", 72*time.Hour),
			PurgeBatchSize: int32(getIntEnv("DOWNLOADS_PURGE_BATCH_SIZE", 500)),
		},
		Notify: NotifyConfig{
			URL:           getEnv("NOTIFY_URL", ""),
			QueueSize:     getIntEnv("NOTIFY_QUEUE_SIZE", 64),
			MaxAttempts:   getIntEnv("NOTIFY_MAX_ATTEMPTS", 3),
			RetryInterval: getSecondsEnv("NOTIFY_RETRY_INTERVAL_SECONDS", 5*time.Second),
			HTTPTimeout:   getSecondsEnv("NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Jobs: JobsConfig{
			PurgeInterval: getMinutesEnv("DOWNLOADS_PURGE_INTERVAL_MINUTES", 60*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}
