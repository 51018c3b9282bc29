package dashboard

import (
	"sort"
	"sync"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/logger"
)

// DefaultRecentLimit is how many events an event feed card shows
const DefaultRecentLimit = 10

// Status is the display state of a feed card
type Status string

const (
	StatusPending Status = "pending" // no fetch completed yet
	StatusOK      Status = "ok"
	StatusStale   Status = "stale"   // last fetch failed, older data shown
	StatusNoData  Status = "no_data" // payload had no recognizable shape
)

// FeedView is everything the presentation layer shows for one feed
type FeedView struct {
	Source                signal.FeedSource       `json:"source"`
	Status                Status                  `json:"status"`
	Unreachable           bool                    `json:"unreachable"`
	ConsecutiveFailures   int                     `json:"consecutiveFailures"`
	LastSuccessfulFetchAt time.Time               `json:"lastSuccessfulFetchAt"`
	LastError             string                  `json:"lastError,omitempty"`
	Metric                *signal.CanonicalMetric `json:"metric,omitempty"`
	Highlighted           bool                    `json:"highlighted"`
	Recent                []signal.CanonicalEvent `json:"recent,omitempty"`
	UpdatedAt             time.Time               `json:"updatedAt"`
}

// Clone returns a deep copy
func (v FeedView) Clone() FeedView {
	out := v
	out.Source = v.Source.Clone()
	if v.Metric != nil {
		m := v.Metric.Clone()
		out.Metric = &m
	}
	if v.Recent != nil {
		out.Recent = make([]signal.CanonicalEvent, len(v.Recent))
		for i, ev := range v.Recent {
			out.Recent[i] = ev.Clone()
		}
	}
	return out
}

// Subscriber is told about every feed view change. Calls happen outside the
// store lock and must not block.
type Subscriber interface {
	PublishFeed(view FeedView)
}

// Store holds the latest view of every feed
type Store struct {
	mu          sync.RWMutex
	views       map[string]*FeedView
	recentLimit int
	subscribers []Subscriber
	now         func() time.Time
	log         *logger.Logger
}

// NewStore creates an empty store
func NewStore(recentLimit int) *Store {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &Store{
		views:       make(map[string]*FeedView),
		recentLimit: recentLimit,
		now:         time.Now,
		log:         logger.Get().With("component", "dashboard"),
	}
}

// Subscribe registers a subscriber for view updates
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Register ensures a card exists for source, keeping any data already shown
func (s *Store) Register(source signal.FeedSource) {
	s.update(source, func(v *FeedView) {})
}

// PublishMetric shows a freshly normalized metric
func (s *Store) PublishMetric(source signal.FeedSource, metric signal.CanonicalMetric, state signal.ScheduleState) {
	s.update(source, func(v *FeedView) {
		m := metric.Clone()
		v.Metric = &m
		v.Highlighted = gateHolds(source.Gate, m)
		v.Status = StatusOK
		applyState(v, state)
	})
}

// PublishEvents merges a batch into the recent list, newest first
func (s *Store) PublishEvents(source signal.FeedSource, events []signal.CanonicalEvent, state signal.ScheduleState) {
	s.update(source, func(v *FeedView) {
		v.Recent = mergeRecent(v.Recent, events, s.recentLimit)
		v.Status = StatusOK
		applyState(v, state)
	})
}

// MarkNoData flags a successful fetch whose payload could not be read
func (s *Store) MarkNoData(source signal.FeedSource, state signal.ScheduleState, reason string) {
	s.update(source, func(v *FeedView) {
		v.Status = StatusNoData
		applyState(v, state)
		v.LastError = reason
	})
}

// MarkStale flags a failed fetch. Previously shown data stays visible.
func (s *Store) MarkStale(source signal.FeedSource, state signal.ScheduleState) {
	s.update(source, func(v *FeedView) {
		v.Status = StatusStale
		applyState(v, state)
	})
}

// Remove drops the card of a deleted feed
func (s *Store) Remove(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[feedID]; ok {
		delete(s.views, feedID)
		s.log.Debug("Feed view removed", "feed", feedID)
	}
}

// View returns a copy of one feed's card
func (s *Store) View(feedID string) (FeedView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[feedID]
	if !ok {
		return FeedView{}, false
	}
	return v.Clone(), true
}

// Snapshot returns copies of every card ordered by feed id
func (s *Store) Snapshot() []FeedView {
	s.mu.RLock()
	out := make([]FeedView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Source.ID < out[j].Source.ID })
	return out
}

func (s *Store) update(source signal.FeedSource, fn func(v *FeedView)) {
	s.mu.Lock()
	v, ok := s.views[source.ID]
	if !ok {
		v = &FeedView{Status: StatusPending}
		s.views[source.ID] = v
	}
	v.Source = source.Clone()
	fn(v)
	v.UpdatedAt = s.now()
	out := v.Clone()
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.PublishFeed(out.Clone())
	}
}

func applyState(v *FeedView, state signal.ScheduleState) {
	v.Unreachable = state.Unreachable()
	v.ConsecutiveFailures = state.ConsecutiveFailures
	v.LastSuccessfulFetchAt = state.LastSuccessfulFetchAt
	v.LastError = state.LastError
}

func gateHolds(gate *signal.Gate, m signal.CanonicalMetric) bool {
	if gate == nil {
		return false
	}
	value, ok := m.Fields[gate.Field]
	return ok && value < gate.Below
}

// mergeRecent adds events not yet shown, sorts by occurrence descending and
// keeps at most limit entries
func mergeRecent(current, incoming []signal.CanonicalEvent, limit int) []signal.CanonicalEvent {
	seen := make(map[signal.Fingerprint]bool, len(current)+len(incoming))
	merged := make([]signal.CanonicalEvent, 0, len(current)+len(incoming))
	for _, ev := range incoming {
		if fp := ev.Fingerprint(); !seen[fp] {
			seen[fp] = true
			merged = append(merged, ev.Clone())
		}
	}
	for _, ev := range current {
		if fp := ev.Fingerprint(); !seen[fp] {
			seen[fp] = true
			merged = append(merged, ev)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].OccurredAt.After(merged[j].OccurredAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
