package workers

import (
	"context"
	"sync"
	"time"

	"signalwatch/internal/domain/signal"
)

// Fetcher performs one poll of a feed
type Fetcher interface {
	Fetch(ctx context.Context, source signal.FeedSource) (signal.RawSnapshot, error)
}

// Sink receives the outcome of every poll whose feed is still armed when the
// fetch completes. state is a copy taken right after the fetch finished.
type Sink interface {
	OnSnapshot(ctx context.Context, source signal.FeedSource, snap signal.RawSnapshot, state signal.ScheduleState)
	OnFailure(ctx context.Context, source signal.FeedSource, err error, state signal.ScheduleState)
}

// FeedWorker is the timer-driven task of one feed source
type FeedWorker struct {
	source  signal.FeedSource
	refresh chan struct{}

	cancel   context.CancelFunc
	done     chan struct{}
	launched bool

	mu       sync.Mutex
	state    signal.ScheduleState
	baseline time.Time // completion time of the last attempt, zero until the first one
}

func newFeedWorker(source signal.FeedSource, unreachableAfter int) *FeedWorker {
	return &FeedWorker{
		source:  source,
		refresh: make(chan struct{}, 1),
		state: signal.ScheduleState{
			FeedID:           source.ID,
			Interval:         source.Interval(),
			Phase:            signal.PhaseIdle,
			UnreachableAfter: unreachableAfter,
		},
	}
}

// Source returns a copy of the feed configuration
func (w *FeedWorker) Source() signal.FeedSource {
	return w.source.Clone()
}

// State returns a copy of the schedule state
func (w *FeedWorker) State() signal.ScheduleState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// inherit carries timing over from a replaced worker that polled the same endpoint
func (w *FeedWorker) inherit(prev signal.ScheduleState, baseline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.LastSuccessfulFetchAt = prev.LastSuccessfulFetchAt
	w.state.ConsecutiveFailures = prev.ConsecutiveFailures
	w.state.LastAttemptAt = prev.LastAttemptAt
	w.state.LastError = prev.LastError
	w.baseline = baseline
	if !baseline.IsZero() {
		w.state.NextFetchAt = baseline.Add(w.state.Interval)
	}
}

func (w *FeedWorker) timing() (signal.ScheduleState, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.baseline
}

// begin marks the start of a fetch. It returns false when one is already running.
func (w *FeedWorker) begin(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.IsFetching {
		return false
	}
	w.state.IsFetching = true
	w.state.Phase = signal.PhaseFetching
	w.state.LastAttemptAt = now
	return true
}

// finish records the fetch outcome and returns the resulting state as the sink
// sees it. The worker itself stays busy until end. crossed is true only for the
// failure that makes the feed unreachable.
func (w *FeedWorker) finish(now time.Time, err error) (state signal.ScheduleState, crossed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wasUnreachable := w.state.Unreachable()

	w.baseline = now
	w.state.NextFetchAt = now.Add(w.state.Interval)

	if err != nil {
		w.state.ConsecutiveFailures++
		w.state.LastError = err.Error()
		state = w.state
		state.IsFetching = false
		state.Phase = signal.PhaseFailed
		return state, !wasUnreachable && w.state.Unreachable()
	}

	w.state.LastSuccessfulFetchAt = now
	w.state.ConsecutiveFailures = 0
	w.state.LastError = ""
	state = w.state
	state.IsFetching = false
	state.Phase = signal.PhaseIdle
	return state, false
}

// end releases the worker after its outcome was delivered. Refresh requests
// are rejected until then.
func (w *FeedWorker) end() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.IsFetching = false
	w.state.Phase = signal.PhaseIdle
}

func (w *FeedWorker) fetching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.IsFetching
}

// untilDue returns how long to wait before the next timed poll
func (w *FeedWorker) untilDue(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.baseline.IsZero() {
		return 0
	}
	wait := w.baseline.Add(w.state.Interval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// requestRefresh queues at most one out-of-band poll
func (w *FeedWorker) requestRefresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

// drainRefresh drops refresh requests that raced with the start of the poll
// that just completed
func (w *FeedWorker) drainRefresh() bool {
	select {
	case <-w.refresh:
		return true
	default:
		return false
	}
}
