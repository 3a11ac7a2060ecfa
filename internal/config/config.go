package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every runtime setting for both binaries. It is built once
// at startup and passed by reference; nothing reads the environment after
// Load returns.
type Config struct {
	Client ClientConfig
	Server ServerConfig
	Log    LogConfig
}

// ClientConfig holds the connection settings for the detection API client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
}

// ServerConfig holds the settings for the inference backend.
type ServerConfig struct {
	ListenAddr    string
	ModelPath     string
	MaxUploadSize int64
	RedisAddr     string
	DatabaseDSN   string
	JWTSecret     string
	JWTAudience   string
	CacheTTL      time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from the environment, falling back to defaults.
func Load() (*Config, error) {
	requestTimeout, err := getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getEnvDuration("RESPONSE_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvDuration("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	maxUpload, err := getEnvInt64("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}

	return &Config{
		Client: ClientConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://localhost:8000"),
			RequestTimeout: requestTimeout,
			ReadTimeout:    readTimeout,
		},
		Server: ServerConfig{
			ListenAddr:    getEnv("LISTEN_ADDR", ":8000"),
			ModelPath:     getEnv("MODEL_PATH", "models/effv2s_fold5.onnx"),
			MaxUploadSize: maxUpload,
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			DatabaseDSN:   getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=deepverify port=5432 sslmode=disable"),
			JWTSecret:     os.Getenv("JWT_SECRET"),
			JWTAudience:   os.Getenv("JWT_AUDIENCE"),
			CacheTTL:      cacheTTL,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer in %s: %w", key, err)
	}
	return parsed, nil
}
