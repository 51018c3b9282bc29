package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/domain/settings"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/testsupport"
	"signalwatch/pkg/errors"
)

func TestSettingsRepository_RoundTrip(t *testing.T) {
	client := testsupport.NewRedisClient(t)
	repo := NewSettingsRepository(client.Client())
	ctx := context.Background()

	_, err := repo.Load(ctx, settings.Key)
	require.ErrorIs(t, err, errors.ErrNotFound)

	in := &settings.Settings{Feeds: []signal.FeedSource{
		{ID: "query", URL: "http://feeds.test/query", RefreshIntervalSeconds: 600, Kind: signal.FeedKindEvents},
	}}
	require.NoError(t, repo.Save(ctx, settings.Key, in))

	out, err := repo.Load(ctx, settings.Key)
	require.NoError(t, err)
	assert.Equal(t, in.Feeds, out.Feeds)
	assert.NoError(t, repo.Ping(ctx))
}
