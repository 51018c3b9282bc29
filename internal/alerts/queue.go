package alerts

import (
	"context"
	"sync"
	"time"

	"signalwatch/internal/metrics"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// Queue defaults for network sinks
const (
	DefaultQueueSize    = 64
	DefaultQueueTimeout = 15 * time.Second
)

// QueuedNotifier hands notifications to a slow sink from its own goroutine.
// Notify never blocks the caller. A full buffer rejects the notification.
type QueuedNotifier struct {
	name    string
	next    Notifier
	timeout time.Duration
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	done   chan struct{}
}

// NewQueuedNotifier starts the delivery goroutine of next. timeout bounds one
// delivery, including any rate limiting inside next.
func NewQueuedNotifier(name string, next Notifier, size int, timeout time.Duration) *QueuedNotifier {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultQueueTimeout
	}
	q := &QueuedNotifier{
		name:    name,
		next:    next,
		timeout: timeout,
		log:     logger.Get().With("component", "alert_queue", "sink", name),
		queue:   make(chan Notification, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Notify implements Notifier
func (q *QueuedNotifier) Notify(_ context.Context, n Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errors.Wrapf(errors.ErrUnavailable, "sink %s closed", q.name)
	}
	select {
	case q.queue <- n:
		return nil
	default:
		return errors.Wrapf(errors.ErrUnavailable, "sink %s queue full", q.name)
	}
}

// Pending returns the number of queued notifications
func (q *QueuedNotifier) Pending() int {
	return len(q.queue)
}

// Close stops accepting notifications and waits for the queue to drain
func (q *QueuedNotifier) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrTimeout, "drain %s queue: %d pending", q.name, len(q.queue))
	}
}

func (q *QueuedNotifier) run() {
	defer close(q.done)
	for n := range q.queue {
		q.deliver(n)
	}
}

func (q *QueuedNotifier) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.NotifierFailures.WithLabelValues(q.name).Inc()
			q.log.Error("Alert sink panicked", "notification", n.ID, "panic", r)
		}
	}()

	if err := q.next.Notify(ctx, n); err != nil {
		if errors.Is(err, errors.ErrSinkDisabled) {
			return
		}
		metrics.NotifierFailures.WithLabelValues(q.name).Inc()
		q.log.Error("Alert sink failed",
			"notification", n.ID,
			"error", err,
		)
	}
}
