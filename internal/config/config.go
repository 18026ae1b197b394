package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Cart      CartConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
	// MigrationsDir is the goose migrations directory.
	MigrationsDir string
}

// DSN builds a pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Schema,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Enabled switches guest carts and checkout locks from in-process to Redis.
	Enabled bool
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	Secret       string
	AccessExpiry int // in minutes
}

type CartConfig struct {
	GuestTTL      time.Duration
	SessionHeader string
	SessionCookie string
}

type CheckoutConfig struct {
	// LockTTL bounds how long one checkout may hold its cart.
	LockTTL time.Duration
}

type RateLimitConfig struct {
	CheckoutPerMinute int
}

type AdminConfig struct {
	// Emails listed here are registered with the admin role.
	Emails []string
}

// IsAdminEmail reports whether email belongs to a configured admin.
func (c AdminConfig) IsAdminEmail(email string) bool {
	for _, e := range c.Emails {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_MIGRATIONS_DIR", "migrations")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("JWT_ACCESS_EXPIRY", 60)
	v.SetDefault("CART_GUEST_TTL", "72h")
	v.SetDefault("CART_SESSION_HEADER", "X-Cart-Session")
	v.SetDefault("CART_SESSION_COOKIE", "cart_session")
	v.SetDefault("CHECKOUT_LOCK_TTL", "30s")
	v.SetDefault("RATE_LIMIT_CHECKOUT_PER_MINUTE", 10)
	v.SetDefault("ADMIN_EMAILS", "")
}

// Load reads configuration from .env in the working directory and the environment.
func Load() *Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetString("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			Database:      v.GetString("DB_DATABASE"),
			Schema:        v.GetString("DB_SCHEMA"),
			MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Enabled:  v.GetBool("REDIS_ENABLED"),
		},
		JWT: JWTConfig{
			Secret:       v.GetString("JWT_SECRET"),
			AccessExpiry: v.GetInt("JWT_ACCESS_EXPIRY"),
		},
		Cart: CartConfig{
			GuestTTL:      v.GetDuration("CART_GUEST_TTL"),
			SessionHeader: v.GetString("CART_SESSION_HEADER"),
			SessionCookie: v.GetString("CART_SESSION_COOKIE"),
		},
		Checkout: CheckoutConfig{
			LockTTL: v.GetDuration("CHECKOUT_LOCK_TTL"),
		},
		RateLimit: RateLimitConfig{
			CheckoutPerMinute: v.GetInt("RATE_LIMIT_CHECKOUT_PER_MINUTE"),
		},
		Admin: AdminConfig{
			Emails: splitList(v.GetString("ADMIN_EMAILS")),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
