package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Port          string        `envconfig:"PORT" default:"5000"`
	Environment   string        `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	JWTSecret     string        `envconfig:"JWT_SECRET" default:"your-secret-key-change-in-production"`
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"720h"`
	CORSOrigins   []string      `envconfig:"CORS_ORIGINS" default:"*"`
	MaxUploadSize int64         `envconfig:"MAX_UPLOAD_SIZE" default:"5242880"`
	TempDir       string        `envconfig:"TEMP_DIR"`

	// Datastore is "sqlite" or "mongodb".
	Datastore     string `envconfig:"DATASTORE" default:"sqlite"`
	DatabasePath  string `envconfig:"DATABASE_PATH" default:"./data/wasteless.db"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"wasteless"`

	// MediaBackend is "local" or "s3".
	MediaBackend      string `envconfig:"MEDIA_BACKEND" default:"local"`
	FileStoragePath   string `envconfig:"FILE_STORAGE_PATH" default:"./data/uploads"`
	MediaBaseURL      string `envconfig:"MEDIA_BASE_URL" default:"/uploads"`
	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint        string `envconfig:"S3_ENDPOINT"`
	S3PublicBaseURL   string `envconfig:"S3_PUBLIC_BASE_URL"`
	S3AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
}

// Load reads WASTELESS_ENV_FILE (or ./.env when present) and then the
// environment. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile() error {
	if path := os.Getenv("WASTELESS_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() error {
	switch c.Datastore {
	case "sqlite", "mongodb":
	default:
		return fmt.Errorf("unknown DATASTORE %q", c.Datastore)
	}

	switch c.MediaBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when MEDIA_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND %q", c.MediaBackend)
	}

	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}
