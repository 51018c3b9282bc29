package countdown

import (
	"context"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/logger"
)

// SecondsRemaining returns whole seconds until the feed is due again. A feed
// that never succeeded reads 0. The value is derived from the last success
// timestamp, so it never accumulates tick drift.
func SecondsRemaining(state signal.ScheduleState, now time.Time) int {
	if state.LastSuccessfulFetchAt.IsZero() {
		return 0
	}
	elapsed := int(now.Sub(state.LastSuccessfulFetchAt) / time.Second)
	remaining := state.IntervalSeconds() - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot computes the countdown of every feed
func Snapshot(states []signal.ScheduleState, now time.Time) map[string]int {
	out := make(map[string]int, len(states))
	for _, st := range states {
		out[st.FeedID] = SecondsRemaining(st, now)
	}
	return out
}

// StateSource lists the schedule state of every feed
type StateSource interface {
	States() []signal.ScheduleState
}

// Publisher receives countdown values once per tick
type Publisher interface {
	PublishCountdown(values map[string]int)
}

// Presenter re-reads schedule state every tick and publishes countdowns.
// It only reads state and never triggers a fetch.
type Presenter struct {
	source    StateSource
	publisher Publisher
	tick      time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewPresenter creates a presenter ticking once per second
func NewPresenter(source StateSource, publisher Publisher) *Presenter {
	return &Presenter{
		source:    source,
		publisher: publisher,
		tick:      time.Second,
		now:       time.Now,
		log:       logger.Get().With("component", "countdown"),
	}
}

// Run publishes until ctx is cancelled
func (p *Presenter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	p.log.Debug("Countdown presenter started", "tick", p.tick)
	p.publish()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Countdown presenter stopped")
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *Presenter) publish() {
	p.publisher.PublishCountdown(Snapshot(p.source.States(), p.now()))
}
