package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/alerts"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/normalize"
	"signalwatch/internal/novelty"
	"signalwatch/internal/services/dashboard"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type dispatch struct {
	kind   signal.EventKind
	events []signal.CanonicalEvent
	at     time.Time
}

type recordingDispatcher struct {
	clock *testClock
	calls []dispatch
}

func (r *recordingDispatcher) Dispatch(_ context.Context, kind signal.EventKind, events []signal.CanonicalEvent) (alerts.Notification, bool) {
	r.calls = append(r.calls, dispatch{kind: kind, events: events, at: r.clock.Now()})
	return alerts.Notification{Kind: kind, Count: len(events)}, true
}

type fixture struct {
	clock      *testClock
	store      *dashboard.Store
	dispatcher *recordingDispatcher
	svc        *Service
}

func newFixture() *fixture {
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := dashboard.NewStore(10)
	d := &recordingDispatcher{clock: clock}
	svc := NewService(
		normalize.New(normalize.Options{DefaultMidpoint: 0.5}),
		store,
		novelty.NewLedger(24*time.Hour, 1000, clock),
		d,
		logger.Nop(),
	)
	return &fixture{clock: clock, store: store, dispatcher: d, svc: svc}
}

func (f *fixture) poll(source signal.FeedSource, body string) {
	snap := signal.RawSnapshot{FeedID: source.ID, Body: []byte(body), StatusCode: 200, FetchedAt: f.clock.Now()}
	state := signal.ScheduleState{FeedID: source.ID, Interval: source.Interval(), LastSuccessfulFetchAt: f.clock.Now()}
	f.svc.OnSnapshot(context.Background(), source, snap, state)
}

var (
	querySource = signal.FeedSource{ID: "query", URL: "http://feeds.test/query", RefreshIntervalSeconds: 30, Kind: signal.FeedKindEvents}
	panicSource = signal.FeedSource{
		ID: "panic", URL: "http://feeds.test/panic", RefreshIntervalSeconds: 30, Kind: signal.FeedKindMetric,
		Gate: &signal.Gate{Field: signal.FieldTotalPosition, Below: 9.2e9},
	}
)

func TestService_ReReportedEventDispatchesOnce(t *testing.T) {
	f := newFixture()
	body := `{"data": [{"symbol": "BTC", "signal": "buy", "timestamp": "2024-03-01T08:59:00Z", "price": 64000}]}`
	start := f.clock.Now()

	for cycle := 0; cycle < 3; cycle++ {
		f.poll(querySource, body)
		f.clock.Advance(30 * time.Second)
	}

	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, start, f.dispatcher.calls[0].at, "dispatched at t=0")
	assert.Equal(t, signal.EventKindBuy, f.dispatcher.calls[0].kind)
	assert.Equal(t, "BTC", f.dispatcher.calls[0].events[0].Subject)
}

func TestService_NoDuplicateAlertsAcrossManyCycles(t *testing.T) {
	f := newFixture()
	body := `[
		{"symbol": "BTC", "signal": "buy", "timestamp": 1709283600},
		{"symbol": "ETH", "signal": "sell", "timestamp": 1709283600},
		{"symbol": "SOL", "signal": "buy", "timestamp": 1709283660}
	]`

	for cycle := 0; cycle < 20; cycle++ {
		f.poll(querySource, body)
		f.clock.Advance(30 * time.Second)
	}

	require.Len(t, f.dispatcher.calls, 2, "one per kind on the first cycle")
	assert.Equal(t, signal.EventKindBuy, f.dispatcher.calls[0].kind, "kinds in encounter order")
	assert.Len(t, f.dispatcher.calls[0].events, 2)
	assert.Equal(t, "SOL", f.dispatcher.calls[0].events[1].Subject)
	assert.Equal(t, signal.EventKindSell, f.dispatcher.calls[1].kind)
}

func TestService_NewEventAmongOldOnesAlertsAlone(t *testing.T) {
	f := newFixture()
	f.poll(querySource, `[{"symbol": "BTC", "signal": "buy", "timestamp": 1709283600}]`)
	f.clock.Advance(30 * time.Second)
	f.poll(querySource, `[
		{"symbol": "ETH", "signal": "buy", "timestamp": 1709283630},
		{"symbol": "BTC", "signal": "buy", "timestamp": 1709283600}
	]`)

	require.Len(t, f.dispatcher.calls, 2)
	require.Len(t, f.dispatcher.calls[1].events, 1)
	assert.Equal(t, "ETH", f.dispatcher.calls[1].events[0].Subject)

	v, ok := f.store.View("query")
	require.True(t, ok)
	require.Len(t, v.Recent, 2)
	assert.Equal(t, "ETH", v.Recent[0].Subject)
}

func TestService_MetricFeedAlternateNames(t *testing.T) {
	f := newFixture()

	f.poll(panicSource, `{"openInterest": 9e9}`)
	v, _ := f.store.View("panic")
	require.NotNil(t, v.Metric)
	assert.Equal(t, 9e9, v.Metric.TotalPosition())
	assert.True(t, v.Highlighted)

	f.poll(panicSource, `{"持仓量": 9e9}`)
	v, _ = f.store.View("panic")
	assert.Equal(t, 9e9, v.Metric.TotalPosition())
	assert.Equal(t, dashboard.StatusOK, v.Status)
	assert.Empty(t, f.dispatcher.calls, "metric feeds never alert")
}

func TestService_UnknownEnvelopeMarksNoData(t *testing.T) {
	f := newFixture()

	f.poll(panicSource, `{"success": false, "msg": "maintenance"}`)
	v, _ := f.store.View("panic")
	assert.Equal(t, dashboard.StatusNoData, v.Status)
	assert.Contains(t, v.LastError, "normalize panic")

	f.poll(querySource, `{"result": {}}`)
	v, _ = f.store.View("query")
	assert.Equal(t, dashboard.StatusNoData, v.Status)
	assert.Empty(t, f.dispatcher.calls)
}

func TestService_PartialBatchStillAlerts(t *testing.T) {
	f := newFixture()
	f.poll(querySource, `[{"signal": "buy", "timestamp": 1709283600}, {"symbol": "BTC", "signal": "buy", "timestamp": 1709283600}]`)

	require.Len(t, f.dispatcher.calls, 1)
	assert.Len(t, f.dispatcher.calls[0].events, 1)
}

func TestService_OnFailureMarksStale(t *testing.T) {
	f := newFixture()
	f.poll(panicSource, `{"openInterest": 9e9}`)

	state := signal.ScheduleState{FeedID: "panic", ConsecutiveFailures: 3, UnreachableAfter: 3, LastError: "timeout"}
	f.svc.OnFailure(context.Background(), panicSource, errors.New("timeout"), state)

	v, _ := f.store.View("panic")
	assert.Equal(t, dashboard.StatusStale, v.Status)
	assert.True(t, v.Unreachable)
	require.NotNil(t, v.Metric, "last metric stays visible")
}

func TestService_WithRealDispatcher(t *testing.T) {
	f := newFixture()
	sink := &captureNotifier{}
	d := alerts.NewDispatcher(alerts.NewFanout(alerts.NamedNotifier{Name: "capture", Notifier: sink}), nil, 8)
	svc := NewService(normalize.New(normalize.Options{}), f.store, novelty.NewLedger(time.Hour, 10, f.clock), d, logger.Nop())

	body := `[{"symbol": "BTC", "signal": "sell", "timestamp": 1709283600}]`
	snap := signal.RawSnapshot{FeedID: "query", Body: []byte(body), StatusCode: 200, FetchedAt: f.clock.Now()}
	svc.OnSnapshot(context.Background(), querySource, snap, signal.ScheduleState{FeedID: "query"})
	svc.OnSnapshot(context.Background(), querySource, snap, signal.ScheduleState{FeedID: "query"})

	require.Len(t, sink.got, 1)
	assert.Equal(t, "1 new sell signal", sink.got[0].Title)
	assert.Equal(t, []string{"BTC"}, sink.got[0].Preview)
}

type captureNotifier struct {
	got []alerts.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n alerts.Notification) error {
	c.got = append(c.got, n)
	return nil
}
