package testsupport

import (
	"context"
	"testing"
	"time"

	redisclient "signalwatch/internal/adapters/redis"
)

// NewRedisClient connects through the redis adapter and flushes the scratch
// database before and after the test.
func NewRedisClient(t *testing.T) *redisclient.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redisclient.NewClient(ctx, RedisConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	if err := client.Client().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Client().FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
