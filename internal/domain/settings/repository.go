package settings

import "context"

// Repository stores settings documents by key.
// Load returns errors.ErrNotFound when nothing was saved under key.
type Repository interface {
	Load(ctx context.Context, key string) (*Settings, error)
	Save(ctx context.Context, key string, s *Settings) error
}
