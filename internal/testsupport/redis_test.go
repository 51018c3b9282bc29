package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_StartsEmpty(t *testing.T) {
	client := NewRedisClient(t)
	ctx := context.Background()

	size, err := client.Client().DBSize(ctx).Result()
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, client.Client().Set(ctx, "signalwatch:test", "value", 0).Err())
	assert.NoError(t, client.Health(ctx))
}

func TestNewSQLiteClient(t *testing.T) {
	client := NewSQLiteClient(t)
	assert.Equal(t, "sqlite", client.Driver())
	assert.NoError(t, client.Health(context.Background()))

	var n int
	require.NoError(t, client.DB().Get(&n, `SELECT COUNT(*) FROM settings`))
	assert.Zero(t, n)
}
