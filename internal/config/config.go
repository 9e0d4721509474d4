// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-sphere-development-secret"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	JWTSecret              string `mapstructure:"JWT_SECRET"`
	AuthTokenTTLMinutes    int    `mapstructure:"AUTH_TOKEN_TTL_MINUTES"`
	AuthRefreshWindowHours int    `mapstructure:"AUTH_REFRESH_WINDOW_HOURS"`
	RateLimitAuthPerMinute int    `mapstructure:"RATE_LIMIT_AUTH_PER_MINUTE"`

	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode             string `mapstructure:"DB_SCHEMA_MODE"`
	DBTimeoutMS              int    `mapstructure:"DB_TIMEOUT_MS"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	StorageDriver     string `mapstructure:"STORAGE_DRIVER"`
	StorageLocalDir   string `mapstructure:"STORAGE_LOCAL_DIR"`
	MinioEndpoint     string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey    string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey    string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket       string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL       bool   `mapstructure:"MINIO_USE_SSL"`
	MinioPublicURL    string `mapstructure:"MINIO_PUBLIC_URL"`
	AvatarMaxUploadMB int    `mapstructure:"AVATAR_MAX_UPLOAD_MB"`

	OTelExporter string `mapstructure:"OTEL_EXPORTER"`
	OTelEndpoint string `mapstructure:"OTEL_ENDPOINT"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "3000")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:4200,http://localhost:3000")

	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("AUTH_TOKEN_TTL_MINUTES", 60)
	viper.SetDefault("AUTH_REFRESH_WINDOW_HOURS", 168)
	viper.SetDefault("RATE_LIMIT_AUTH_PER_MINUTE", 20)

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "sphere")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "sphere")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_TIMEOUT_MS", 3000)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("STORAGE_DRIVER", "local")
	viper.SetDefault("STORAGE_LOCAL_DIR", "uploads")
	viper.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	viper.SetDefault("MINIO_ACCESS_KEY", "")
	viper.SetDefault("MINIO_SECRET_KEY", "")
	viper.SetDefault("MINIO_BUCKET", "avatars")
	viper.SetDefault("MINIO_USE_SSL", false)
	viper.SetDefault("MINIO_PUBLIC_URL", "")
	viper.SetDefault("AVATAR_MAX_UPLOAD_MB", 5)

	viper.SetDefault("OTEL_EXPORTER", "none")
	viper.SetDefault("OTEL_ENDPOINT", "localhost:4318")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.OTelExporter = strings.ToLower(strings.TrimSpace(c.OTelExporter))
}

// IsProduction reports whether the process runs with production-grade checks.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// TokenTTL is the lifetime of an issued session token.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.AuthTokenTTLMinutes) * time.Minute
}

// RefreshWindow is how long after expiry a token may still be exchanged for a new one.
func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.AuthRefreshWindowHours) * time.Hour
}

// DBTimeout bounds every individual datastore call.
func (c *Config) DBTimeout() time.Duration {
	return time.Duration(c.DBTimeoutMS) * time.Millisecond
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.AuthTokenTTLMinutes <= 0 {
		return errors.New("AUTH_TOKEN_TTL_MINUTES must be positive")
	}
	if c.AuthRefreshWindowHours < 0 {
		return errors.New("AUTH_REFRESH_WINDOW_HOURS must not be negative")
	}
	if c.DBTimeoutMS <= 0 {
		return errors.New("DB_TIMEOUT_MS must be positive")
	}
	if c.AvatarMaxUploadMB <= 0 {
		return errors.New("AVATAR_MAX_UPLOAD_MB must be positive")
	}

	switch c.StorageDriver {
	case "local":
		if c.StorageLocalDir == "" {
			return errors.New("STORAGE_LOCAL_DIR is required when STORAGE_DRIVER=local")
		}
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required when STORAGE_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
