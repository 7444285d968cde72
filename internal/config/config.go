// config.go
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	ShopifyStoreDomain string
	ShopifyAccessToken string
	ShopifyAPIVersion  string
	ShopifyTimeout     time.Duration

	// Audit trail; empty MongoURI disables it.
	MongoURI    string
	MongoDBName string

	// Messaging; empty RabbitURL disables it.
	RabbitURL string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "3000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "")),

		ShopifyStoreDomain: getEnv("SHOPIFY_STORE_DOMAIN", ""),
		ShopifyAccessToken: getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		ShopifyAPIVersion:  getEnv("SHOPIFY_API_VERSION", "2023-10"),
		ShopifyTimeout:     getDuration("SHOPIFY_TIMEOUT", 10*time.Second),

		MongoURI:    getEnv("MONGO_URI", ""),
		MongoDBName: getEnv("MONGO_DB_NAME", "warranty_db"),

		RabbitURL: getEnv("RABBIT_URL", ""),
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.ShopifyStoreDomain == "" {
		errs = append(errs, errors.New("SHOPIFY_STORE_DOMAIN is required"))
	}
	if c.ShopifyAccessToken == "" {
		errs = append(errs, errors.New("SHOPIFY_ACCESS_TOKEN is required"))
	}
	if c.ShopifyTimeout <= 0 {
		errs = append(errs, errors.New("SHOPIFY_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) AuditEnabled() bool     { return c.MongoURI != "" }
func (c *Config) MessagingEnabled() bool { return c.RabbitURL != "" }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
