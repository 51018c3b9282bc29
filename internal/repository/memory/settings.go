package memory

import (
	"context"
	"sync"

	"signalwatch/internal/domain/settings"
	"signalwatch/pkg/errors"
)

// Compile-time check
var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository keeps settings in process memory
type SettingsRepository struct {
	mu   sync.RWMutex
	docs map[string]*settings.Settings
}

// NewSettingsRepository creates an empty in-memory repository
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{docs: make(map[string]*settings.Settings)}
}

// Load returns a copy of the settings stored under key
func (r *SettingsRepository) Load(_ context.Context, key string) (*settings.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.docs[key]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "settings %s", key)
	}
	return s.Clone(), nil
}

// Save stores a copy of s under key
func (r *SettingsRepository) Save(_ context.Context, key string, s *settings.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[key] = s.Clone()
	return nil
}

// Ping always succeeds
func (r *SettingsRepository) Ping(context.Context) error {
	return nil
}
