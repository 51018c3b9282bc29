package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"signalwatch/internal/domain/settings"
	"signalwatch/internal/metrics"
	"signalwatch/pkg/errors"
)

// Compile-time check
var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository stores settings documents as JSON rows. The same
// queries serve SQLite and PostgreSQL through sqlx.Rebind.
type SettingsRepository struct {
	db      *sqlx.DB
	backend string
}

// NewSettingsRepository creates a repository over db. backend labels metrics.
func NewSettingsRepository(db *sqlx.DB, backend string) *SettingsRepository {
	return &SettingsRepository{db: db, backend: backend}
}

// Load retrieves the settings stored under key
func (r *SettingsRepository) Load(ctx context.Context, key string) (s *settings.Settings, err error) {
	defer func() { metrics.RecordSettingsQuery(r.backend, "load", ignoreNotFound(err)) }()

	var value string
	query := r.db.Rebind(`SELECT value FROM settings WHERE key = ?`)
	err = r.db.GetContext(ctx, &value, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "settings %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load settings %s", key)
	}

	var out settings.Settings
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal settings %s", key)
	}
	return &out, nil
}

// Save upserts the settings under key
func (r *SettingsRepository) Save(ctx context.Context, key string, s *settings.Settings) (err error) {
	defer func() { metrics.RecordSettingsQuery(r.backend, "save", err) }()

	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal settings %s", key)
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if _, err = r.db.ExecContext(ctx, query, key, string(data), updatedAt); err != nil {
		return errors.Wrapf(err, "failed to save settings %s", key)
	}
	return nil
}

// Ping checks database connectivity
func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	return err
}
