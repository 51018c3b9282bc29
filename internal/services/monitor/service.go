package monitor

import (
	"context"

	"signalwatch/internal/alerts"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
	"signalwatch/internal/normalize"
	"signalwatch/internal/services/dashboard"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Novelty decides whether an event was already alerted on
type Novelty interface {
	IsNovel(fp signal.Fingerprint) bool
}

// Dispatcher alerts on a batch of novel events of one kind
type Dispatcher interface {
	Dispatch(ctx context.Context, kind signal.EventKind, events []signal.CanonicalEvent) (alerts.Notification, bool)
}

// Service turns poll results into dashboard updates and alerts.
// It implements workers.Sink.
type Service struct {
	normalizer *normalize.Normalizer
	store      *dashboard.Store
	novelty    Novelty
	dispatcher Dispatcher
	log        *logger.Logger
}

// NewService creates the monitor pipeline
func NewService(normalizer *normalize.Normalizer, store *dashboard.Store, novelty Novelty, dispatcher Dispatcher, log *logger.Logger) *Service {
	return &Service{
		normalizer: normalizer,
		store:      store,
		novelty:    novelty,
		dispatcher: dispatcher,
		log:        log.With("component", "monitor"),
	}
}

// OnSnapshot normalizes a successful fetch
func (s *Service) OnSnapshot(ctx context.Context, source signal.FeedSource, snap signal.RawSnapshot, state signal.ScheduleState) {
	switch source.Kind {
	case signal.FeedKindMetric:
		s.handleMetric(source, snap, state)
	case signal.FeedKindEvents:
		s.handleEvents(ctx, source, snap, state)
	default:
		s.log.Warn("Snapshot for feed of unknown kind", "feed", source.ID, "kind", source.Kind)
	}
}

// OnFailure degrades the feed card. Previously shown data stays visible.
func (s *Service) OnFailure(ctx context.Context, source signal.FeedSource, err error, state signal.ScheduleState) {
	s.store.MarkStale(source, state)
	s.log.Debug("Feed marked stale",
		"feed", source.ID,
		"consecutive_failures", state.ConsecutiveFailures,
		"error", err,
	)

	if state.Unreachable() && state.ConsecutiveFailures == threshold(state) {
		s.log.Error("Feed unreachable",
			"feed", source.ID,
			"consecutive_failures", state.ConsecutiveFailures,
			"error", errors.Wrapf(errors.ErrFeedUnreachable, "feed %s: %v", source.ID, err),
		)
	}
}

func (s *Service) handleMetric(source signal.FeedSource, snap signal.RawSnapshot, state signal.ScheduleState) {
	m, err := s.normalizer.Metric(snap, source)
	if err != nil {
		s.noData(source, state, err)
		return
	}
	s.store.PublishMetric(source, m, state)
}

func (s *Service) handleEvents(ctx context.Context, source signal.FeedSource, snap signal.RawSnapshot, state signal.ScheduleState) {
	batch, err := s.normalizer.Events(snap, source)
	if err != nil {
		s.noData(source, state, err)
		return
	}

	for _, d := range batch.Dropped {
		metrics.DroppedRecords.WithLabelValues(source.ID, d.Field).Inc()
		s.log.Debug("Record dropped",
			"feed", source.ID,
			"index", d.Index,
			"field", d.Field,
			"reason", d.Reason,
		)
	}

	s.store.PublishEvents(source, batch.Events, state)

	kinds, groups := s.novelByKind(batch.Events)
	for _, kind := range kinds {
		s.dispatcher.Dispatch(ctx, kind, groups[kind])
	}
}

// novelByKind keeps unseen events grouped by kind, both in encounter order
func (s *Service) novelByKind(events []signal.CanonicalEvent) ([]signal.EventKind, map[signal.EventKind][]signal.CanonicalEvent) {
	var kinds []signal.EventKind
	groups := make(map[signal.EventKind][]signal.CanonicalEvent)
	for _, ev := range events {
		if !s.novelty.IsNovel(ev.Fingerprint()) {
			continue
		}
		if _, ok := groups[ev.Kind]; !ok {
			kinds = append(kinds, ev.Kind)
		}
		groups[ev.Kind] = append(groups[ev.Kind], ev)
	}
	return kinds, groups
}

func (s *Service) noData(source signal.FeedSource, state signal.ScheduleState, err error) {
	metrics.NormalizeErrors.WithLabelValues(source.ID).Inc()
	s.log.Warn("Feed payload not recognized",
		"feed", source.ID,
		"error", err,
	)
	s.store.MarkNoData(source, state, err.Error())
}

func threshold(state signal.ScheduleState) int {
	if state.UnreachableAfter > 0 {
		return state.UnreachableAfter
	}
	return signal.DefaultUnreachableAfter
}
