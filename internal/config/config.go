// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dalf/botdetection/internal/logging"
)

type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Log           logging.Config
	DetectionFile string
	// FailOpen sobrescreve fail_open do arquivo de detecção quando definido.
	FailOpen *bool
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	Type      string
	Timeout   time.Duration
	KeyPrefix string
	Secret    string
	Redis     RedisConfig
}

type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads the environment. envFile, when set, must exist; otherwise a
// .env in the working directory is loaded if present.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080")}

	storage, err := buildStorageConfig()
	if err != nil {
		return Config{}, err
	}

	failOpen, err := optionalBool("FAIL_OPEN")
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:  server,
		Storage: storage,
		Log: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		DetectionFile: os.Getenv("BOTDETECTION_CONFIG"),
		FailOpen:      failOpen,
	}, nil
}

func buildStorageConfig() (StorageConfig, error) {
	storageType := strings.ToLower(getEnv("STORAGE_TYPE", "redis"))
	if storageType != "redis" && storageType != "memory" {
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_TYPE: %q", storageType)
	}

	timeout, err := time.ParseDuration(getEnv("STORE_TIMEOUT", "250ms"))
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return StorageConfig{}, fmt.Errorf("invalid STORE_TIMEOUT: must be positive")
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return StorageConfig{}, err
	}

	return StorageConfig{
		Type:      storageType,
		Timeout:   timeout,
		KeyPrefix: getEnv("KEY_PREFIX", "botdetection:"),
		Secret:    os.Getenv("SECRET"),
		Redis:     redisConfig,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		URL:      os.Getenv("REDIS_URL"),
		Host:     host,
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func optionalBool(key string) (*bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &value, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
