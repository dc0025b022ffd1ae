package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

type SMSConfig struct {
	Endpoint string
	APIKey   string
	SenderID string
}

type Config struct {
	App struct {
		Port string
	}
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Mpesa    MpesaConfig
	SMS      SMSConfig
	Payment  struct {
		StaleAfter time.Duration
	}
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Missing required variables are reported as errors.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.App.Port = getenv("APP_PORT", "8080")

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.Postgres.Host = required("DB_HOST")
	cfg.Postgres.Port = getenv("DB_PORT", "5432")
	cfg.Postgres.User = required("DB_USER")
	cfg.Postgres.Password = required("DB_PASSWORD")
	cfg.Postgres.DBName = required("DB_NAME")
	cfg.Postgres.SSLMode = getenv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getenv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Redis.Addr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB

	cfg.Kafka.Brokers = strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	cfg.Kafka.Topic = getenv("KAFKA_TOPIC", "checkout-events")

	cfg.Mpesa.BaseURL = getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	cfg.Mpesa.ConsumerKey = required("MPESA_CONSUMER_KEY")
	cfg.Mpesa.ConsumerSecret = required("MPESA_CONSUMER_SECRET")
	cfg.Mpesa.Shortcode = required("MPESA_SHORTCODE")
	cfg.Mpesa.Passkey = required("MPESA_PASSKEY")
	cfg.Mpesa.CallbackURL = required("MPESA_CALLBACK_URL")

	cfg.SMS.Endpoint = os.Getenv("SMS_ENDPOINT")
	cfg.SMS.APIKey = os.Getenv("SMS_API_KEY")
	cfg.SMS.SenderID = getenv("SMS_SENDER_ID", "DUKALINK")

	staleAfter, err := time.ParseDuration(getenv("PAYMENT_STALE_AFTER", "2m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_STALE_AFTER: %w", err)
	}
	cfg.Payment.StaleAfter = staleAfter

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
