package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all environment variables for the storefront API.
type Config struct {
	Env  string // "production" switches logging to JSON
	Port string

	DBDriver   string // mysql or postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string // empty disables the product cache and idempotency keys

	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RotateRefreshToken bool
	CookieDomain       string
	CookieSecure       bool

	AllowedOrigins []string

	KafkaBrokers []string
	KafkaTopic   string
	SNSTopicARN  string

	AWSUseSecrets bool
	SecretsName   string

	S3Bucket            string
	CloudWatchEnabled   bool
	CloudWatchNamespace string
}

// SecretFetcher reads a JSON object secret.
type SecretFetcher interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// Load loads environment variables (and a .env file when present) into Config.
// Call Validate after any secret overlay has been applied.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("no .env file found, using system environment variables")
	}

	accessTTL, err := getDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := getDuration("JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                 getEnv("ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DBDriver:            strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              os.Getenv("DB_PORT"),
		DBUser:              os.Getenv("DB_USER"),
		DBPassword:          os.Getenv("DB_PASSWORD"),
		DBName:              getEnv("DB_NAME", "storefront"),
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AccessTokenTTL:      accessTTL,
		RefreshTokenTTL:     refreshTTL,
		RotateRefreshToken:  getBool("JWT_ROTATE_REFRESH", false),
		CookieDomain:        os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:        getBool("COOKIE_SECURE", false),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "order.placed"),
		SNSTopicARN:         os.Getenv("SNS_TOPIC_ARN"),
		AWSUseSecrets:       getBool("AWS_USE_SECRETS", false),
		SecretsName:         getEnv("AWS_SECRETS_NAME", "storefront/api"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		CloudWatchEnabled:   getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "Storefront"),
	}

	if cfg.DBPort == "" {
		if cfg.DBDriver == "postgres" {
			cfg.DBPort = "5432"
		} else {
			cfg.DBPort = "3306"
		}
	}

	return cfg, nil
}

// ApplySecrets overrides database credentials and the JWT secret with values
// found in the configured secret. Missing keys keep their env values.
func (c *Config) ApplySecrets(ctx context.Context, fetcher SecretFetcher) error {
	m, err := fetcher.GetSecretMap(ctx, c.SecretsName)
	if err != nil {
		return fmt.Errorf("load secrets %s: %w", c.SecretsName, err)
	}

	overlay := map[string]*string{
		"DB_HOST":     &c.DBHost,
		"DB_PORT":     &c.DBPort,
		"DB_USER":     &c.DBUser,
		"DB_PASSWORD": &c.DBPassword,
		"DB_NAME":     &c.DBName,
		"JWT_SECRET":  &c.JWTSecret,
		"REDIS_URL":   &c.RedisURL,
	}
	for key, field := range overlay {
		if v, ok := m[key]; ok && v != "" {
			*field = v
		}
	}
	return nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.DBDriver != "mysql" && c.DBDriver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", c.DBDriver)
	}
	if c.DBUser == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("JWT_ACCESS_TTL (%s) must be shorter than JWT_REFRESH_TTL (%s)", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	return nil
}

// DSN builds the driver specific connection string.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
	}
	// clientFoundRows makes RowsAffected count matched rows, so an update
	// that changes nothing is not mistaken for a missing row.
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.TrimSuffix(p, "/"))
		}
	}
	return out
}
