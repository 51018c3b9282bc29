package alerts

import (
	"context"
	"sync"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Notifier delivers a notification to one destination
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NamedNotifier is a sink with a label for logs and metrics
type NamedNotifier struct {
	Name     string
	Notifier Notifier
}

// Fanout delivers to every sink. A failing sink is logged and counted and does
// not stop delivery to the rest.
type Fanout struct {
	mu    sync.RWMutex
	sinks []NamedNotifier
	log   *logger.Logger
}

// NewFanout creates a fan-out notifier
func NewFanout(sinks ...NamedNotifier) *Fanout {
	return &Fanout{
		sinks: sinks,
		log:   logger.Get().With("component", "alert_fanout"),
	}
}

// Add registers another sink
func (f *Fanout) Add(name string, n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, NamedNotifier{Name: name, Notifier: n})
}

// Sinks returns the registered sink names
func (f *Fanout) Sinks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name)
	}
	return names
}

// Notify implements Notifier
func (f *Fanout) Notify(ctx context.Context, n Notification) error {
	f.mu.RLock()
	sinks := append([]NamedNotifier(nil), f.sinks...)
	f.mu.RUnlock()

	var errs errors.MultiError
	for _, s := range sinks {
		if err := f.notifyOne(ctx, s, n); err != nil {
			if errors.Is(err, errors.ErrSinkDisabled) {
				continue
			}
			metrics.NotifierFailures.WithLabelValues(s.Name).Inc()
			f.log.Error("Alert sink failed",
				"sink", s.Name,
				"notification", n.ID,
				"error", err,
			)
			errs.Add(errors.Wrapf(err, "sink %s", s.Name))
		}
	}
	return errs.ToError()
}

func (f *Fanout) notifyOne(ctx context.Context, s NamedNotifier, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("sink panic: %v", r)
		}
	}()
	return s.Notifier.Notify(ctx, n)
}

// Trigger starts an audible pulse for a kind
type Trigger interface {
	Trigger(kind signal.EventKind) string
}

// Dispatcher turns a batch of novel events into one notification and one pulse
type Dispatcher struct {
	notifier     Notifier
	pulser       Trigger
	previewLimit int
	now          func() time.Time
	log          *logger.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(notifier Notifier, pulser Trigger, previewLimit int) *Dispatcher {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}
	return &Dispatcher{
		notifier:     notifier,
		pulser:       pulser,
		previewLimit: previewLimit,
		now:          time.Now,
		log:          logger.Get().With("component", "dispatcher"),
	}
}

// Dispatch alerts on events, all of which share kind. An empty batch does nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, kind signal.EventKind, events []signal.CanonicalEvent) (Notification, bool) {
	if len(events) == 0 {
		return Notification{}, false
	}

	n := NewNotification(kind, events, d.previewLimit, d.now())
	metrics.RecordAlert(string(kind), n.Count)

	d.log.Info("Dispatching alert",
		"notification", n.ID,
		"feed", n.FeedID,
		"kind", kind,
		"count", n.Count,
	)

	if d.pulser != nil {
		d.pulser.Trigger(kind)
	}
	if d.notifier != nil {
		// Sink failures are already logged by the fan-out
		_ = d.notifier.Notify(ctx, n)
	}
	return n, true
}
