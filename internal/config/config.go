// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the complete service configuration.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Server   ServerConfig
	GRPC     GRPCConfig
	NATS     NATSConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Workflow WorkflowConfig
}

type ServiceConfig struct {
	Name        string `env:"SERVICE_NAME,default=be-permits-portal"`
	Version     string `env:"SERVICE_VERSION,default=dev"`
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

type DatabaseConfig struct {
	Host        string        `env:"DB_HOST,default=localhost"`
	Port        int           `env:"DB_PORT,default=5432"`
	User        string        `env:"DB_USER,default=postgres"`
	Password    string        `env:"DB_PASSWORD"`
	Database    string        `env:"DB_NAME,default=permits"`
	SSLMode     string        `env:"DB_SSLMODE,default=disable"`
	MaxConns    int32         `env:"DB_MAX_CONNS,default=10"`
	MinConns    int32         `env:"DB_MIN_CONNS,default=1"`
	MaxConnTime time.Duration `env:"DB_MAX_CONN_LIFETIME,default=1h"`
	MaxIdleTime time.Duration `env:"DB_MAX_CONN_IDLE,default=30m"`
	HealthCheck time.Duration `env:"DB_HEALTH_CHECK,default=1m"`
}

type ServerConfig struct {
	Port            int           `env:"HTTP_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=60s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT,default=120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=20s"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=30s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

type GRPCConfig struct {
	Port int `env:"GRPC_PORT,default=9090"`
}

type NATSConfig struct {
	URL string `env:"NATS_URL"`
}

// StorageConfig selects the blob backend. When SupabaseURL is empty documents
// are written under LocalDir.
type StorageConfig struct {
	SupabaseURL string `env:"SUPABASE_URL"`
	ServiceKey  string `env:"SUPABASE_SERVICE_KEY"`
	Bucket      string `env:"STORAGE_BUCKET,default=application-documents"`
	LocalDir    string `env:"STORAGE_LOCAL_DIR,default=./data/documents"`
}

type AuthConfig struct {
	JWTSecret string `env:"SUPABASE_JWT_SECRET"`
	Audience  string `env:"JWT_AUDIENCE,default=authenticated"`
	AdminRole string `env:"ADMIN_ROLE,default=admin"`
}

type WorkflowConfig struct {
	// RejectionTimeline is "blank" or "preserve".
	RejectionTimeline string `env:"WORKFLOW_REJECTION_TIMELINE,default=blank"`
}

// Load reads an optional .env file (or the file named by ENV_FILE) and decodes
// the environment into a Config.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Workflow.RejectionTimeline {
	case "blank", "preserve":
	default:
		return fmt.Errorf("WORKFLOW_REJECTION_TIMELINE must be blank or preserve, got %q", c.Workflow.RejectionTimeline)
	}
	if c.Storage.SupabaseURL != "" && c.Storage.ServiceKey == "" {
		return errors.New("SUPABASE_SERVICE_KEY is required when SUPABASE_URL is set")
	}
	if c.Service.Environment == "production" && c.Auth.JWTSecret == "" {
		return errors.New("SUPABASE_JWT_SECRET is required in production")
	}
	return nil
}
