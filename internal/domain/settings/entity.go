package settings

import (
	"time"

	"signalwatch/internal/domain/signal"
)

// Key is the fixed storage key of the persisted settings
const Key = "signalwatch:settings"

// Settings is the user-editable configuration that survives restarts
type Settings struct {
	Feeds     []signal.FeedSource `json:"feeds"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Clone returns a deep copy
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := &Settings{UpdatedAt: s.UpdatedAt, Feeds: make([]signal.FeedSource, len(s.Feeds))}
	for i, f := range s.Feeds {
		out.Feeds[i] = f.Clone()
	}
	return out
}
