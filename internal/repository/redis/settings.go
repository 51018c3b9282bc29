package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"signalwatch/internal/domain/settings"
	"signalwatch/internal/metrics"
	"signalwatch/pkg/errors"
)

// Compile-time check
var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository implements settings.Repository using Redis
type SettingsRepository struct {
	client *redis.Client
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(client *redis.Client) *SettingsRepository {
	return &SettingsRepository{
		client: client,
	}
}

// Load retrieves the settings stored under key
func (r *SettingsRepository) Load(ctx context.Context, key string) (*settings.Settings, error) {
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.RecordSettingsQuery("redis", "load", nil)
		return nil, errors.Wrapf(errors.ErrNotFound, "settings not found: key=%s", key)
	}
	metrics.RecordSettingsQuery("redis", "load", err)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get settings from redis: key=%s", key)
	}

	var s settings.Settings
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal settings: key=%s", key)
	}

	return &s, nil
}

// Save stores the settings without expiry
func (r *SettingsRepository) Save(ctx context.Context, key string, s *settings.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal settings: key=%s", key)
	}

	err = r.client.Set(ctx, key, data, 0).Err()
	metrics.RecordSettingsQuery("redis", "save", err)
	if err != nil {
		return errors.Wrapf(err, "failed to save settings to redis: key=%s", key)
	}

	return nil
}

// Ping checks Redis connectivity
func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
