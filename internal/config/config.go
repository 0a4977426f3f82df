package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minKeyLen = 32 // HMAC-SHA-256 wants at least a hash-sized key

type Config struct {
	Addr        string
	DatabaseURL string

	SigningKey []byte
	Issuer     string
	Audience   string

	AccessMinutes int
	RefreshDays   int

	// Lockout policy. The defaults mirror the development placeholders of
	// the original deployment and should be overridden in production.
	LockoutMaxAttempts int
	LockoutWindow      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env not found: %v, using system environment", err)
	}

	return &Config{
		Addr:        envDefault("AUTH_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		SigningKey: []byte(os.Getenv("JWT_KEY")),
		Issuer:     envDefault("JWT_ISSUER", "jwtauth"),
		Audience:   envDefault("JWT_AUDIENCE", "jwtauth-clients"),

		AccessMinutes: envIntDefault("ACCESS_MINUTES", 15),
		RefreshDays:   envIntDefault("REFRESH_DAYS", 7),

		LockoutMaxAttempts: envIntDefault("LOCKOUT_MAX_ATTEMPTS", 2),
		LockoutWindow:      time.Duration(envIntDefault("LOCKOUT_WINDOW_SECONDS", 10)) * time.Second,

		KafkaBrokers: csv(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envDefault("KAFKA_TOPIC", "auth_events"),

		LogLevel: envDefault("LOG_LEVEL", "info"),
	}
}

// Validate catches configuration that would only fail at request time.
// Called once at startup so a bad signing key never signs anything.
func (c *Config) Validate() error {
	if len(c.SigningKey) < minKeyLen {
		return fmt.Errorf("JWT_KEY must be at least %d bytes, got %d", minKeyLen, len(c.SigningKey))
	}
	if c.AccessMinutes <= 0 {
		return fmt.Errorf("ACCESS_MINUTES must be positive, got %d", c.AccessMinutes)
	}
	if c.RefreshDays <= 0 {
		return fmt.Errorf("REFRESH_DAYS must be positive, got %d", c.RefreshDays)
	}
	if c.LockoutMaxAttempts <= 0 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be positive, got %d", c.LockoutMaxAttempts)
	}
	return nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshDays) * 24 * time.Hour
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
