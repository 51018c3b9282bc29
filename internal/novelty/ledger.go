package novelty

import (
	"sync"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
)

const (
	DefaultHorizon = 24 * time.Hour
	DefaultCap     = 1000
)

// Clock abstracts time so eviction is deterministic in tests
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock
var SystemClock Clock = ClockFunc(time.Now)

type entry struct {
	fp         signal.Fingerprint
	insertedAt time.Time
}

// Ledger remembers fingerprints that already produced an alert.
// Entries expire after the horizon and the set never grows past the cap.
type Ledger struct {
	mu      sync.Mutex
	clock   Clock
	horizon time.Duration
	cap     int

	index map[signal.Fingerprint]time.Time
	queue []entry // insertion order, oldest at head
	head  int
}

// NewLedger creates a ledger. Non-positive horizon or cap use the defaults.
func NewLedger(horizon time.Duration, capacity int, clock Clock) *Ledger {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Ledger{
		clock:   clock,
		horizon: horizon,
		cap:     capacity,
		index:   make(map[signal.Fingerprint]time.Time, capacity),
		queue:   make([]entry, 0, capacity),
	}
}

// IsNovel reports whether fp is unseen within the horizon. A true result
// records fp, so a second call with the same fingerprint returns false.
func (l *Ledger) IsNovel(fp signal.Fingerprint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.evictExpired(now)

	if _, seen := l.index[fp]; seen {
		return false
	}

	l.index[fp] = now
	l.queue = append(l.queue, entry{fp: fp, insertedAt: now})
	l.evictOverCap()
	l.compact()

	metrics.LedgerSize.Set(float64(len(l.index)))
	return true
}

// Len returns the number of live fingerprints
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.index)
}

// Contains reports whether fp is held, without recording it or evicting
func (l *Ledger) Contains(fp signal.Fingerprint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[fp]
	return ok
}

func (l *Ledger) evictExpired(now time.Time) {
	cutoff := now.Add(-l.horizon)
	evicted := 0
	for l.head < len(l.queue) && l.queue[l.head].insertedAt.Before(cutoff) {
		delete(l.index, l.queue[l.head].fp)
		l.queue[l.head] = entry{}
		l.head++
		evicted++
	}
	if evicted > 0 {
		metrics.LedgerEvictions.WithLabelValues("horizon").Add(float64(evicted))
	}
}

func (l *Ledger) evictOverCap() {
	evicted := 0
	for len(l.index) > l.cap {
		delete(l.index, l.queue[l.head].fp)
		l.queue[l.head] = entry{}
		l.head++
		evicted++
	}
	if evicted > 0 {
		metrics.LedgerEvictions.WithLabelValues("cap").Add(float64(evicted))
	}
}

// compact reclaims the consumed head of the queue once it dominates the slice
func (l *Ledger) compact() {
	if l.head == 0 || l.head < len(l.queue)/2 {
		return
	}
	live := copy(l.queue, l.queue[l.head:])
	for i := live; i < len(l.queue); i++ {
		l.queue[i] = entry{}
	}
	l.queue = l.queue[:live]
	l.head = 0
}
