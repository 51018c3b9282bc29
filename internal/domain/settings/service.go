package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Applier puts a feed list into effect without a restart
type Applier interface {
	Apply(sources []signal.FeedSource) error
}

// ViewRemover forgets what is displayed for a feed
type ViewRemover interface {
	Remove(feedID string)
}

// Service owns the feed list in effect and keeps it persisted
type Service struct {
	repo     Repository
	defaults []signal.FeedSource
	applier  Applier
	views    ViewRemover
	now      func() time.Time
	log      *logger.Logger

	// updateMu orders Save, Apply and the swap of current across callers
	updateMu sync.Mutex

	mu      sync.RWMutex
	current []signal.FeedSource
}

// NewService creates the settings service. views may be nil.
func NewService(repo Repository, defaults []signal.FeedSource, applier Applier, views ViewRemover, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		defaults: cloneFeeds(defaults),
		applier:  applier,
		views:    views,
		now:      time.Now,
		log:      log.With("component", "settings"),
	}
}

// Load applies the persisted feed list. The defaults are used only while
// nothing has been stored.
func (s *Service) Load(ctx context.Context) ([]signal.FeedSource, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	var feeds []signal.FeedSource
	stored, err := s.repo.Load(ctx, Key)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		s.log.Info("No stored settings, using default feeds", "feeds", len(s.defaults))
		feeds = cloneFeeds(s.defaults)
	case err != nil:
		return nil, errors.Wrap(err, "failed to load settings")
	default:
		feeds = cloneFeeds(stored.Feeds)
		s.log.Info("Using stored feeds", "updated_at", stored.UpdatedAt)
	}

	if err := s.applier.Apply(feeds); err != nil {
		return nil, errors.Wrap(err, "failed to apply stored feeds")
	}

	s.mu.Lock()
	s.current = feeds
	s.mu.Unlock()

	s.log.Info("Settings loaded", "feeds", len(feeds))
	return cloneFeeds(feeds), nil
}

// Update validates, persists and applies a complete feed list. Feeds missing
// from the list stay removed across restarts.
func (s *Service) Update(ctx context.Context, feeds []signal.FeedSource) (*Settings, error) {
	if err := ValidateFeeds(feeds); err != nil {
		return nil, err
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	next := &Settings{Feeds: cloneFeeds(feeds), UpdatedAt: s.now().UTC()}
	if err := s.repo.Save(ctx, Key, next); err != nil {
		return nil, errors.Wrap(err, "failed to save settings")
	}
	if err := s.applier.Apply(next.Feeds); err != nil {
		return nil, errors.Wrap(err, "failed to apply feeds")
	}

	s.mu.Lock()
	removed := removedIDs(s.current, next.Feeds)
	s.current = cloneFeeds(next.Feeds)
	s.mu.Unlock()

	if s.views != nil {
		for _, id := range removed {
			s.views.Remove(id)
		}
	}

	s.log.Info("Settings updated", "feeds", len(next.Feeds), "removed", len(removed))
	return next.Clone(), nil
}

// Current returns the feeds in effect
func (s *Service) Current() []signal.FeedSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFeeds(s.current)
}

// ValidateFeeds checks every feed and that ids are unique
func ValidateFeeds(feeds []signal.FeedSource) error {
	var errs errors.MultiError
	seen := make(map[string]bool, len(feeds))
	for i, f := range feeds {
		if err := f.Validate(); err != nil {
			errs.Add(err)
			continue
		}
		if seen[f.ID] {
			errs.Add(errors.NewValidationError(fmt.Sprintf("feeds[%d].id", i), "duplicate", f.ID))
			continue
		}
		seen[f.ID] = true
	}
	if errs.HasErrors() {
		return errors.Wrapf(errors.ErrInvalidInput, "invalid feeds: %v", errs.ToError())
	}
	return nil
}

func removedIDs(before, after []signal.FeedSource) []string {
	keep := make(map[string]bool, len(after))
	for _, f := range after {
		keep[f.ID] = true
	}
	var out []string
	for _, f := range before {
		if !keep[f.ID] {
			out = append(out, f.ID)
		}
	}
	return out
}

func cloneFeeds(feeds []signal.FeedSource) []signal.FeedSource {
	if feeds == nil {
		return nil
	}
	out := make([]signal.FeedSource, len(feeds))
	for i, f := range feeds {
		out[i] = f.Clone()
	}
	return out
}
