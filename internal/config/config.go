package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Session store backends
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Server
	Port        string
	Environment string

	// NATS
	NATSURL string

	// Redis
	RedisURL string

	// Import sessions
	SessionStore    string
	SessionTTL      time.Duration
	MaxUploadBytes  int64
	MaxImageBytes   int64
	SubmitTimeout   time.Duration
	PurgeInterval   time.Duration
	StaffServiceURL string

	// Bulk save backend; empty saves through the local repository
	BulkSaveURL        string
	BulkSaveTimeout    time.Duration
	BulkSaveMaxRetries int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	return &Config{
		// Database - fetch password from GCP Secret Manager if enabled
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: secrets.GetDBPassword(),
		DBName:     getEnv("DB_NAME", "ooh_import_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		NATSURL:  getEnv("NATS_URL", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		SessionStore:    getEnv("SESSION_STORE", SessionStorePostgres),
		SessionTTL:      time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 5)) << 20,
		MaxImageBytes:   int64(getEnvInt("MAX_IMAGE_MB", 5)) << 20,
		SubmitTimeout:   time.Duration(getEnvInt("SUBMIT_TIMEOUT_SECONDS", 120)) * time.Second,
		PurgeInterval:   time.Duration(getEnvInt("SESSION_PURGE_MINUTES", 60)) * time.Minute,
		StaffServiceURL: getEnv("STAFF_SERVICE_URL", "http://staff-service:8080"),

		BulkSaveURL:        getEnv("BULK_SAVE_URL", ""),
		BulkSaveTimeout:    time.Duration(getEnvInt("BULK_SAVE_TIMEOUT_SECONDS", 60)) * time.Second,
		BulkSaveMaxRetries: getEnvInt("BULK_SAVE_MAX_RETRIES", 2),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// InitRedis connects to REDIS_URL. A nil client with a nil error means Redis
// is not configured.
func InitRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
