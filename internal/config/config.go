package config

import (
	"os"
	"strconv"
	"time"

	"mlm_shop/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Payment timeout worker
	PaymentTimeout time.Duration
	WorkerInterval time.Duration
	WorkerLockTTL  time.Duration
	WorkerBatch    int

	// Admin API rate limit
	AdminRateLimit  int
	AdminRateWindow int
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			redisDB = n
		}
	}

	// Payment window (по умолчанию 30 минут)
	paymentTimeout := 30 * time.Minute
	if v := os.Getenv("PAYMENT_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			paymentTimeout = time.Duration(n) * time.Minute
		}
	}

	workerInterval := 5 * time.Minute
	if v := os.Getenv("PAYMENT_WORKER_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workerInterval = time.Duration(n) * time.Minute
		}
	}

	// TTL аренды должен покрывать самый долгий проход воркера
	workerLockTTL := 60 * time.Second
	if v := os.Getenv("WORKER_LOCK_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workerLockTTL = time.Duration(n) * time.Second
		}
	}

	workerBatch := 100
	if v := os.Getenv("WORKER_BATCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workerBatch = n
		}
	}

	adminRateLimit := 120 // макс запросов за ->
	if v := os.Getenv("ADMIN_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			adminRateLimit = n
		}
	}

	adminRateWindow := 60 // -> 60 секунд
	if v := os.Getenv("ADMIN_RATE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			adminRateWindow = n
		}
	}

	return &Config{
		AppPort:         port,
		DatabaseURL:     dbURL,
		JWTSecret:       jwtSecret,
		RedisAddr:       redisAddr,
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		PaymentTimeout:  paymentTimeout,
		WorkerInterval:  workerInterval,
		WorkerLockTTL:   workerLockTTL,
		WorkerBatch:     workerBatch,
		AdminRateLimit:  adminRateLimit,
		AdminRateWindow: adminRateWindow,
	}
}
