package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlclient "signalwatch/internal/adapters/sqldb"
	"signalwatch/internal/domain/settings"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/testsupport"
	"signalwatch/pkg/errors"
)

func newTestRepository(t *testing.T) *SettingsRepository {
	t.Helper()

	client := testsupport.NewSQLiteClient(t)
	return NewSettingsRepository(client.DB(), client.Driver())
}

func TestSettingsRepository_LoadMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Load(context.Background(), settings.Key)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSettingsRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	midpoint := 0.4
	in := &settings.Settings{
		Feeds: []signal.FeedSource{
			{
				ID: "panic", URL: "http://feeds.test/panic", RefreshIntervalSeconds: 30, Kind: signal.FeedKindMetric,
				Gate: &signal.Gate{Field: signal.FieldTotalPosition, Below: 9.2e9},
			},
			{ID: "query", URL: "http://feeds.test/query", RefreshIntervalSeconds: 600, Kind: signal.FeedKindEvents, Midpoint: &midpoint},
		},
		UpdatedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, settings.Key, in))

	out, err := repo.Load(ctx, settings.Key)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSettingsRepository_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := &settings.Settings{Feeds: []signal.FeedSource{{ID: "a", URL: "http://a.test", RefreshIntervalSeconds: 1, Kind: signal.FeedKindEvents}}}
	second := &settings.Settings{Feeds: []signal.FeedSource{{ID: "b", URL: "http://b.test", RefreshIntervalSeconds: 2, Kind: signal.FeedKindMetric}}}

	require.NoError(t, repo.Save(ctx, settings.Key, first))
	require.NoError(t, repo.Save(ctx, settings.Key, second))

	out, err := repo.Load(ctx, settings.Key)
	require.NoError(t, err)
	require.Len(t, out.Feeds, 1)
	assert.Equal(t, "b", out.Feeds[0].ID)

	_, err = repo.Load(ctx, "other")
	assert.ErrorIs(t, err, errors.ErrNotFound, "keys are independent")
	assert.NoError(t, repo.Ping(ctx))
}

func TestSettingsRepository_Postgres(t *testing.T) {
	dsn := testsupport.PostgresDSNFromEnv(t)
	ctx := context.Background()

	client, err := sqlclient.Open(ctx, sqlclient.DriverPostgres, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewSettingsRepository(client.DB(), "postgres")
	key := "signalwatch:test:" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		_, _ = client.DB().ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key)
	})

	in := &settings.Settings{Feeds: []signal.FeedSource{{ID: "a", URL: "http://a.test", RefreshIntervalSeconds: 5, Kind: signal.FeedKindEvents}}}
	require.NoError(t, repo.Save(ctx, key, in))
	require.NoError(t, repo.Save(ctx, key, in))

	out, err := repo.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, in.Feeds, out.Feeds)
}
