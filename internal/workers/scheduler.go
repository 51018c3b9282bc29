package workers

import (
	"context"
	"sort"
	"sync"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Options tunes the scheduler
type Options struct {
	UnreachableAfter int
	ShutdownTimeout  time.Duration
	Now              func() time.Time
}

// Scheduler runs one independent timer-driven task per feed source.
// Next-due times are derived from wall-clock completion timestamps, so a
// late fetch never shifts later cycles.
type Scheduler struct {
	fetcher Fetcher
	sink    Sink
	opts    Options

	feeds   map[string]*FeedWorker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	log     *logger.Logger
	started bool
}

// NewScheduler creates a new feed scheduler
func NewScheduler(fetcher Fetcher, sink Sink, opts Options) *Scheduler {
	if opts.UnreachableAfter <= 0 {
		opts.UnreachableAfter = signal.DefaultUnreachableAfter
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		fetcher: fetcher,
		sink:    sink,
		opts:    opts,
		feeds:   make(map[string]*FeedWorker),
		log:     logger.Get().With("component", "scheduler"),
	}
}

// Start fetches every registered feed immediately and arms its timer
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.log.Info("Starting feed scheduler", "feeds", len(s.feeds))
	for _, w := range s.feeds {
		s.launch(w, nil)
	}
	return nil
}

// Stop cancels every feed task and waits for them to exit.
// In-flight fetches are left to their own timeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	s.log.Info("Stopping feed scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Info("All feed tasks stopped")
	case <-time.After(s.opts.ShutdownTimeout):
		s.log.Warn("Feed scheduler shutdown timed out", "timeout", s.opts.ShutdownTimeout)
		shutdownErr = errors.Wrapf(errors.ErrInternal, "shutdown timeout after %s", s.opts.ShutdownTimeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Upsert registers a feed or reconfigures an existing one. Only the affected
// feed's task is cancelled and re-armed. A changed URL or kind fetches
// immediately; an interval-only change keeps the previous baseline.
func (s *Scheduler) Upsert(source signal.FeedSource) error {
	if err := source.Validate(); err != nil {
		return err
	}
	source = source.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.feeds[source.ID]
	if exists && old.source.Equal(source) {
		return nil
	}

	w := newFeedWorker(source, s.opts.UnreachableAfter)
	var prevDone <-chan struct{}
	if exists {
		if old.source.SameEndpoint(source) {
			prev, baseline := old.timing()
			w.inherit(prev, baseline)
		}
		if old.launched {
			old.cancel()
			prevDone = old.done
		}
		s.log.Info("Feed reconfigured", "feed", source.ID, "url", source.URL, "interval", source.Interval())
	} else {
		s.log.Info("Feed registered", "feed", source.ID, "url", source.URL, "interval", source.Interval())
	}

	s.feeds[source.ID] = w
	if s.started {
		s.launch(w, prevDone)
	}
	return nil
}

// Remove cancels and forgets a feed. An in-flight fetch finishes but its result is dropped.
func (s *Scheduler) Remove(feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.feeds[feedID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "feed %s", feedID)
	}
	if w.launched {
		w.cancel()
	}
	delete(s.feeds, feedID)
	s.log.Info("Feed removed", "feed", feedID)
	return nil
}

// Apply reconciles the running feeds with sources
func (s *Scheduler) Apply(sources []signal.FeedSource) error {
	wanted := make(map[string]bool, len(sources))
	for _, src := range sources {
		wanted[src.ID] = true
	}

	var errs errors.MultiError
	for _, id := range s.feedIDs() {
		if !wanted[id] {
			errs.Add(s.Remove(id))
		}
	}
	for _, src := range sources {
		errs.Add(s.Upsert(src))
	}
	return errs.ToError()
}

// Refresh requests an out-of-band fetch. It never queues behind a running fetch.
func (s *Scheduler) Refresh(feedID string) error {
	s.mu.RLock()
	w, ok := s.feeds[feedID]
	started := s.started
	s.mu.RUnlock()

	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "feed %s", feedID)
	}
	if !started {
		return errors.Wrapf(errors.ErrUnavailable, "scheduler not running")
	}
	if w.fetching() {
		metrics.FeedSkipped.WithLabelValues(feedID, "in_flight").Inc()
		return errors.Wrapf(errors.ErrFetchInFlight, "feed %s", feedID)
	}

	w.requestRefresh()
	s.log.Debug("Manual refresh requested", "feed", feedID)
	return nil
}

// States returns copies of every feed's schedule state ordered by feed id
func (s *Scheduler) States() []signal.ScheduleState {
	s.mu.RLock()
	states := make([]signal.ScheduleState, 0, len(s.feeds))
	for _, w := range s.feeds {
		states = append(states, w.State())
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].FeedID < states[j].FeedID })
	return states
}

// State returns a copy of one feed's schedule state
func (s *Scheduler) State(feedID string) (signal.ScheduleState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.feeds[feedID]
	if !ok {
		return signal.ScheduleState{}, false
	}
	return w.State(), true
}

// Sources returns the configured feed sources ordered by id
func (s *Scheduler) Sources() []signal.FeedSource {
	s.mu.RLock()
	sources := make([]signal.FeedSource, 0, len(s.feeds))
	for _, w := range s.feeds {
		sources = append(sources, w.Source())
	}
	s.mu.RUnlock()

	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources
}

func (s *Scheduler) feedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.feeds))
	for id := range s.feeds {
		ids = append(ids, id)
	}
	return ids
}

// launch starts w's task. Callers hold s.mu.
func (s *Scheduler) launch(w *FeedWorker, prevDone <-chan struct{}) {
	ctx, cancel := context.WithCancel(s.ctx)
	w.cancel = cancel
	done := make(chan struct{})
	w.done = done
	w.launched = true

	s.wg.Add(1)
	go s.runFeed(ctx, w, done, prevDone)
}

// runFeed executes one feed in a loop until its context is cancelled
func (s *Scheduler) runFeed(ctx context.Context, w *FeedWorker, done chan struct{}, prevDone <-chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	// A replaced task may still be finishing its fetch
	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			return
		}
	}

	id := w.source.ID
	s.log.Info("Feed task started", "feed", id, "interval", w.source.Interval())

	timer := time.NewTimer(w.untilDue(s.opts.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Feed task stopping due to context cancellation", "feed", id)
			return

		case <-timer.C:

		case <-w.refresh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		s.poll(ctx, w)

		// Requests that slipped in before begin were served by the poll above
		if w.drainRefresh() {
			metrics.FeedSkipped.WithLabelValues(id, "in_flight").Inc()
		}
		w.end()
		timer.Reset(w.untilDue(s.opts.Now()))
	}
}

// poll runs one fetch and hands the outcome to the sink unless the feed was cancelled meanwhile
func (s *Scheduler) poll(ctx context.Context, w *FeedWorker) {
	source := w.Source()
	if !w.begin(s.opts.Now()) {
		metrics.FeedSkipped.WithLabelValues(source.ID, "in_flight").Inc()
		return
	}

	start := time.Now()
	snap, err := s.fetch(context.WithoutCancel(ctx), source)
	state, crossed := w.finish(s.opts.Now(), err)
	metrics.RecordPollOutcome(source.ID, state.LastSuccessfulFetchAt, state.ConsecutiveFailures)

	if ctx.Err() != nil {
		metrics.FeedSkipped.WithLabelValues(source.ID, "cancelled").Inc()
		s.log.Debug("Discarding result of cancelled feed", "feed", source.ID)
		return
	}

	if err != nil {
		s.log.Warn("Feed fetch failed",
			"feed", source.ID,
			"error", err,
			"consecutive_failures", state.ConsecutiveFailures,
			"duration", time.Since(start),
		)
		if crossed {
			s.log.Warn("Feed unreachable",
				"feed", source.ID,
				"consecutive_failures", state.ConsecutiveFailures,
				"last_success", state.LastSuccessfulFetchAt,
			)
		}
		s.deliver(source.ID, func() { s.sink.OnFailure(ctx, source, err, state) })
		return
	}

	s.log.Debug("Feed fetch completed",
		"feed", source.ID,
		"bytes", len(snap.Body),
		"duration", time.Since(start),
	)
	s.deliver(source.ID, func() { s.sink.OnSnapshot(ctx, source, snap, state) })
}

// fetch calls the fetcher and turns a panic into an error
func (s *Scheduler) fetch(ctx context.Context, source signal.FeedSource) (snap signal.RawSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Feed fetch panicked", "feed", source.ID, "panic", r)
			err = errors.Wrapf(errors.ErrInternal, "fetch panic: %v", r)
		}
	}()
	return s.fetcher.Fetch(ctx, source)
}

func (s *Scheduler) deliver(feedID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Feed sink panicked", "feed", feedID, "panic", r)
		}
	}()
	fn()
}
