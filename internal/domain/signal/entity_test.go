package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_StableAcrossPolls(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := NewEvent("query", EventKindBuy, at, "BTC-USDT", map[string]any{"price": 1.0}, "64000")
	second := NewEvent("query-mirror", EventKindBuy, at.In(time.FixedZone("CST", 8*3600)), "btc-usdt", nil, "64000")

	assert.Equal(t, first.Fingerprint(), second.Fingerprint(), "same occurrence must share a key")
}

func TestFingerprint_DiffersPerTupleMember(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	base := NewFingerprint(EventKindBuy, at, "ETH", "1")

	assert.NotEqual(t, base, NewFingerprint(EventKindSell, at, "ETH", "1"))
	assert.NotEqual(t, base, NewFingerprint(EventKindBuy, at.Add(time.Millisecond), "ETH", "1"))
	assert.NotEqual(t, base, NewFingerprint(EventKindBuy, at, "SOL", "1"))
	assert.NotEqual(t, base, NewFingerprint(EventKindBuy, at, "ETH", "2"))
}

func TestCanonicalEvent_CloneIsIndependent(t *testing.T) {
	ev := NewEvent("q", EventKindSell, time.Now(), "ETH", map[string]any{"score": 3.0}, "")
	cp := ev.Clone()
	cp.Attributes["score"] = 9.0

	v, ok := ev.AttrNumber("score")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, ev.Fingerprint(), cp.Fingerprint())
}

func TestScheduleState_Unreachable(t *testing.T) {
	st := ScheduleState{ConsecutiveFailures: 2}
	assert.False(t, st.Unreachable())

	st.ConsecutiveFailures = 3
	assert.True(t, st.Unreachable())

	st.UnreachableAfter = 5
	assert.False(t, st.Unreachable())
}

func TestFeedSource_Equal(t *testing.T) {
	mid := 0.4
	a := FeedSource{ID: "a", URL: "http://x", RefreshIntervalSeconds: 30, Kind: FeedKindEvents, Midpoint: &mid}
	b := a.Clone()
	assert.True(t, a.Equal(b))

	*b.Midpoint = 0.6
	assert.False(t, a.Equal(b))
	assert.Equal(t, 0.4, *a.Midpoint)

	c := a.Clone()
	c.RefreshIntervalSeconds = 60
	assert.True(t, a.SameEndpoint(c))
	assert.False(t, a.Equal(c))
}
