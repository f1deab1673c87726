package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	AllowedOrigins     []string

	// StoreDriver is "mongo" or "memory".
	StoreDriver string
	MongoURI    string
	MongoDBName string
	// CatalogFile seeds the memory store with products.
	CatalogFile string

	// RedisAddr empty disables the cart cache.
	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	TokenSecret string
	TokenTTL    time.Duration
	BcryptCost  int

	FirebaseProjectID string

	KafkaBrokers      []string
	KafkaTopic        string
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "shop"),
		Env:         getEnv("ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		AllowedOrigins:     getList("ALLOWED_ORIGINS"),

		StoreDriver: getEnv("STORE_DRIVER", "mongo"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "shopdb"),
		CatalogFile: getEnv("CATALOG_FILE", ""),

		RedisAddr:     getEnvAllowEmpty("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CartCacheTTL:  getDuration("CART_CACHE_TTL", 15*time.Minute),

		TokenSecret: getEnv("TOKEN_SECRET", "change-me"),
		TokenTTL:    getDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost:  getInt("BCRYPT_COST", 10),

		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),

		KafkaBrokers:      getList("KAFKA_BROKERS"),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "checkout-completed"),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 5*time.Second),
		ReconcileGrace:    getDuration("RECONCILE_GRACE", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is getEnv where a variable set to "" counts as set.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
