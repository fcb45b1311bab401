package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string   `env:"PORT" env-default:"5000"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-default:"http://localhost:3000"`

	Mongo     MongoConfig
	JWT       JWTConfig
	Log       LogConfig
	Upload    UploadConfig
	MinIO     MinIOConfig
	Redis     RedisConfig
	NATS      NATSConfig
	RateLimit RateLimitConfig
	Janitor   JanitorConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI" env-required:"true"`
	Database string `env:"MONGO_DATABASE" env-default:"car_rental"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET" env-required:"true"`
	Expiry time.Duration `env:"JWT_EXPIRY" env-default:"168h"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `env:"LOG_PRETTY" env-default:"false"`
}

type UploadConfig struct {
	Backend     string `env:"STORAGE_BACKEND" env-default:"disk"`
	Dir         string `env:"UPLOAD_DIR" env-default:"uploads"`
	MaxFileSize int64  `env:"MAX_UPLOAD_FILE_SIZE" env-default:"5242880"`
	MaxFiles    int    `env:"MAX_UPLOAD_FILES" env-default:"10"`
}

type MinIOConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" env-default:"car-images"`
	UseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`
}

// RedisConfig leaves the car cache disabled when Addr is empty.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	CarTTL   time.Duration `env:"CAR_CACHE_TTL" env-default:"5m"`
}

type NATSConfig struct {
	URL string `env:"NATS_URL"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" env-default:"20"`
	Burst int     `env:"RATE_LIMIT_BURST" env-default:"40"`
}

type JanitorConfig struct {
	Interval    time.Duration `env:"JANITOR_INTERVAL" env-default:"1h"`
	GracePeriod time.Duration `env:"JANITOR_GRACE_PERIOD" env-default:"1h"`
}

const (
	StorageDisk  = "disk"
	StorageMinIO = "minio"
)

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, reading configuration from the environment")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Upload.Backend {
	case StorageDisk:
	case StorageMinIO:
		if c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Upload.Backend)
	}
	if c.Upload.MaxFiles < 1 || c.Upload.MaxFileSize < 1 {
		return fmt.Errorf("upload limits must be positive")
	}
	return nil
}
