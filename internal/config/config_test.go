package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TOKEN_TTL", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, "checkout-completed", cfg.KafkaTopic)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("RECONCILE_GRACE", "30")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := Load()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.ReconcileGrace)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_RedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	assert.Empty(t, Load().RedisAddr)

	t.Setenv("REDIS_ADDR", "cache:6380")
	assert.Equal(t, "cache:6380", Load().RedisAddr)
}

func TestGetEnvAllowEmpty_Unset(t *testing.T) {
	assert.Equal(t, "localhost:6379", getEnvAllowEmpty("SHOP_TEST_UNSET_KEY", "localhost:6379"))
}

func TestGetDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "soon")
	assert.Equal(t, time.Minute, getDuration("SOME_TIMEOUT", time.Minute))
}

func TestGetInt(t *testing.T) {
	t.Setenv("BCRYPT_COST", "12")
	assert.Equal(t, 12, getInt("BCRYPT_COST", 10))

	t.Setenv("BCRYPT_COST", "high")
	assert.Equal(t, 10, getInt("BCRYPT_COST", 10))
}
