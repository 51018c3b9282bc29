package alerts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/errors"
)

func events(n int, kind signal.EventKind) []signal.CanonicalEvent {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]signal.CanonicalEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, signal.NewEvent("query", kind, base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("S%d", i), nil, ""))
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	got  []Notification
	err  error
	hook func()
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.hook != nil {
		r.hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingNotifier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type recordingTrigger struct {
	mu    sync.Mutex
	kinds []signal.EventKind
}

func (r *recordingTrigger) Trigger(kind signal.EventKind) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return "pulse"
}

type toneRecorder struct {
	mu    sync.Mutex
	tones []Tone
	ends  []string
}

func (r *toneRecorder) PlayTone(t Tone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tones = append(r.tones, t)
}

func (r *toneRecorder) EndPulse(id string, _ signal.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, id)
}

func (r *toneRecorder) snapshot() ([]Tone, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tone(nil), r.tones...), append([]string(nil), r.ends...)
}

func TestNewNotification_Preview(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	n := NewNotification(signal.EventKindBuy, events(11, signal.EventKindBuy), 8, now)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, 11, n.Count)
	assert.Equal(t, []string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7"}, n.Preview)
	assert.Equal(t, 3, n.More)
	assert.Equal(t, "+3 more", n.Summary)
	assert.Len(t, n.Events, 8)
	assert.Equal(t, "query", n.FeedID)
	assert.Equal(t, "11 new buy signals", n.Title)
	assert.Equal(t, now, n.CreatedAt)

	single := NewNotification(signal.EventKindSell, events(1, signal.EventKindSell), 8, now)
	assert.Zero(t, single.More)
	assert.Empty(t, single.Summary)
	assert.Equal(t, "1 new sell signal", single.Title)

	other := NewNotification(signal.EventKindSell, events(1, signal.EventKindSell), 8, now)
	assert.NotEqual(t, single.ID, other.ID)
}

func TestDispatcher_EmptyBatchIsNoop(t *testing.T) {
	notifier := &recordingNotifier{}
	trigger := &recordingTrigger{}
	d := NewDispatcher(notifier, trigger, 8)

	_, ok := d.Dispatch(context.Background(), signal.EventKindBuy, nil)
	assert.False(t, ok)
	assert.Zero(t, notifier.Count())
	assert.Empty(t, trigger.kinds)
}

func TestDispatcher_OnePulseAndNotificationPerBatch(t *testing.T) {
	notifier := &recordingNotifier{}
	trigger := &recordingTrigger{}
	d := NewDispatcher(notifier, trigger, 0)

	n, ok := d.Dispatch(context.Background(), signal.EventKindSell, events(3, signal.EventKindSell))
	require.True(t, ok)
	assert.Equal(t, 3, n.Count)
	assert.Equal(t, []signal.EventKind{signal.EventKindSell}, trigger.kinds)
	require.Equal(t, 1, notifier.Count())
	assert.Equal(t, n.ID, notifier.got[0].ID)
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	broken := &recordingNotifier{err: errors.New("telegram down")}
	panicky := &recordingNotifier{hook: func() { panic("boom") }}
	disabled := &recordingNotifier{err: errors.ErrSinkDisabled}
	healthy := &recordingNotifier{}

	f := NewFanout(
		NamedNotifier{Name: "telegram", Notifier: broken},
		NamedNotifier{Name: "panicky", Notifier: panicky},
		NamedNotifier{Name: "disabled", Notifier: disabled},
	)
	f.Add("websocket", healthy)
	assert.Equal(t, []string{"telegram", "panicky", "disabled", "websocket"}, f.Sinks())

	err := f.Notify(context.Background(), NewNotification(signal.EventKindBuy, events(1, signal.EventKindBuy), 8, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")

	var multi *errors.MultiError
	require.True(t, errors.As(err, &multi))
	assert.Len(t, multi.Errors, 2, "disabled sinks are not failures")
	assert.Equal(t, 1, broken.Count())
	assert.Equal(t, 1, healthy.Count())
}

func TestPulser_EmitsTonesThenEnds(t *testing.T) {
	rec := &toneRecorder{}
	p := NewPulser(PulseConfig{Duration: 100 * time.Millisecond, ToneEvery: 20 * time.Millisecond, ToneLength: 5 * time.Millisecond}, rec)

	id := p.Trigger(signal.EventKindBuy)
	require.Eventually(t, func() bool {
		_, ends := rec.snapshot()
		return len(ends) == 1
	}, time.Second, 5*time.Millisecond)

	tones, ends := rec.snapshot()
	assert.Equal(t, []string{id}, ends)
	assert.Len(t, tones, 5)
	for i, tone := range tones {
		assert.Equal(t, i, tone.Seq)
		assert.Equal(t, BuyToneHz, tone.FrequencyHz)
		assert.Equal(t, 5, tone.DurationMs)
		assert.Equal(t, id, tone.PulseID)
	}
	assert.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
}

func TestPulser_TriggerRestartsRunningPulse(t *testing.T) {
	rec := &toneRecorder{}
	p := NewPulser(PulseConfig{Duration: 150 * time.Millisecond, ToneEvery: 30 * time.Millisecond}, rec)

	first := p.Trigger(signal.EventKindBuy)
	time.Sleep(40 * time.Millisecond)
	second := p.Trigger(signal.EventKindSell)
	assert.NotEqual(t, first, second)

	require.Eventually(t, func() bool {
		_, ends := rec.snapshot()
		return len(ends) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	tones, ends := rec.snapshot()
	assert.Equal(t, []string{second}, ends, "the cancelled pulse never ends on its own")

	var sell int
	for _, tone := range tones {
		if tone.PulseID == second {
			sell++
			assert.Equal(t, SellToneHz, tone.FrequencyHz)
		}
	}
	assert.Equal(t, 5, sell)
}

func TestPulser_Stop(t *testing.T) {
	rec := &toneRecorder{}
	p := NewPulser(PulseConfig{Duration: time.Minute, ToneEvery: time.Second}, rec)

	p.Trigger(signal.EventKindBuy)
	assert.True(t, p.Active())
	p.Stop()
	assert.False(t, p.Active())

	_, ends := rec.snapshot()
	assert.Empty(t, ends)
	p.Stop()
}

func TestToneFrequency(t *testing.T) {
	assert.Equal(t, 880, ToneFrequency(signal.EventKindBuy))
	assert.Equal(t, 440, ToneFrequency(signal.EventKindSell))
}
