package novelty

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/domain/signal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fp(i int) signal.Fingerprint {
	return signal.Fingerprint(fmt.Sprintf("fp-%04d", i))
}

func TestLedger_IdempotentNovelty(t *testing.T) {
	clock := newFakeClock()
	l := NewLedger(24*time.Hour, 1000, clock)

	ev := signal.NewEvent("query", signal.EventKindBuy, clock.Now(), "BTC", nil, "64000")
	assert.True(t, l.IsNovel(ev.Fingerprint()))

	for i := 0; i < 5; i++ {
		clock.Advance(time.Hour)
		assert.False(t, l.IsNovel(ev.Fingerprint()), "re-observation %d", i)
	}
	assert.Equal(t, 1, l.Len())
}

func TestLedger_HorizonEviction(t *testing.T) {
	clock := newFakeClock()
	l := NewLedger(24*time.Hour, 1000, clock)

	require.True(t, l.IsNovel(fp(1)))
	clock.Advance(12 * time.Hour)
	require.True(t, l.IsNovel(fp(2)))

	clock.Advance(12 * time.Hour)
	assert.False(t, l.IsNovel(fp(1)), "exactly at the horizon is still remembered")

	clock.Advance(time.Second)
	assert.True(t, l.IsNovel(fp(1)), "older than the horizon alerts again")
	assert.False(t, l.IsNovel(fp(2)))
	assert.Equal(t, 2, l.Len())
}

func TestLedger_RepeatObservationDoesNotExtendLifetime(t *testing.T) {
	clock := newFakeClock()
	l := NewLedger(time.Hour, 10, clock)

	require.True(t, l.IsNovel(fp(1)))
	clock.Advance(50 * time.Minute)
	require.False(t, l.IsNovel(fp(1)))
	clock.Advance(11 * time.Minute)

	assert.True(t, l.IsNovel(fp(1)))
}

func TestLedger_EvictionBound(t *testing.T) {
	clock := newFakeClock()
	l := NewLedger(24*time.Hour, 100, clock)

	for i := 0; i < 1000; i++ {
		clock.Advance(time.Millisecond)
		require.True(t, l.IsNovel(fp(i)))
		require.LessOrEqual(t, l.Len(), 100)
	}

	assert.Equal(t, 100, l.Len())
	assert.True(t, l.Contains(fp(999)))
	assert.True(t, l.Contains(fp(900)))
	assert.False(t, l.Contains(fp(899)), "oldest entries are dropped first")
}

func TestLedger_HorizonRunsBeforeCap(t *testing.T) {
	clock := newFakeClock()
	l := NewLedger(time.Minute, 3, clock)

	require.True(t, l.IsNovel(fp(1)))
	require.True(t, l.IsNovel(fp(2)))
	clock.Advance(2 * time.Minute)
	require.True(t, l.IsNovel(fp(3)))
	require.True(t, l.IsNovel(fp(4)))

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Contains(fp(3)))
	assert.True(t, l.Contains(fp(4)))
}

func TestLedger_ConcurrentSameFingerprint(t *testing.T) {
	l := NewLedger(time.Hour, 50, nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		novel int
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if l.IsNovel(fp(i % 40)) {
					mu.Lock()
					novel++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, novel, "each fingerprint is novel exactly once")
	assert.Equal(t, 40, l.Len())
}

func TestNewLedger_Defaults(t *testing.T) {
	l := NewLedger(0, 0, nil)
	assert.Equal(t, DefaultHorizon, l.horizon)
	assert.Equal(t, DefaultCap, l.cap)
}
