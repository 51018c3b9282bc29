package testsupport

import (
	"fmt"
	"os"
	"testing"

	"signalwatch/internal/adapters/config"
)

// RedisConfigFromEnv reads the redis section for integration tests.
// The test is skipped when REDIS_HOST is not set.
func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()

	if os.Getenv("REDIS_HOST") == "" {
		t.Skip("integration environment missing, set REDIS_HOST to run")
	}

	return config.RedisConfig{
		Host:     os.Getenv("REDIS_HOST"),
		Port:     intValue("REDIS_PORT", 6379),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intValue("REDIS_DB", 15),
	}
}

// PostgresDSNFromEnv returns the DSN of a scratch database.
// The test is skipped when SETTINGS_POSTGRES_DSN is not set.
func PostgresDSNFromEnv(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("SETTINGS_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("integration environment missing, set SETTINGS_POSTGRES_DSN to run")
	}
	return dsn
}

func intValue(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		_, err := fmt.Sscanf(val, "%d", &parsed)
		if err == nil {
			return parsed
		}
	}

	return fallback
}
