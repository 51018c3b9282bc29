package normalize

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/errors"
)

var fetchedAt = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func snapshot(body string) signal.RawSnapshot {
	return signal.RawSnapshot{FeedID: "panic", Body: []byte(body), StatusCode: 200, FetchedAt: fetchedAt}
}

func metricSource() signal.FeedSource {
	return signal.FeedSource{ID: "panic", Kind: signal.FeedKindMetric, RefreshIntervalSeconds: 30}
}

func eventSource() signal.FeedSource {
	return signal.FeedSource{ID: "query", Kind: signal.FeedKindEvents, RefreshIntervalSeconds: 600}
}

func TestMetric_HistoricalEnvelopesAreEquivalent(t *testing.T) {
	record := `{"openInterest": 9000000000, "24h涨跌幅": "-3.5%", "volume24h": "1,250,000", "holders": 4312, "recordTime": "2024-03-01 07:59:30"}`
	payloads := map[string]string{
		"object":       record,
		"success_data": `{"success": true, "data": ` + record + `}`,
		"records":      `[` + record + `, {"openInterest": 1}]`,
		"snapshots":    `{"snapshots": [` + record + `]}`,
	}

	n := New(Options{DefaultMidpoint: 0.5})
	var results []signal.CanonicalMetric
	for name, body := range payloads {
		m, err := n.Metric(snapshot(body), metricSource())
		require.NoError(t, err, name)
		results = append(results, m)
	}

	want := results[0]
	assert.Equal(t, 9e9, want.TotalPosition())
	assert.Equal(t, -3.5, want.Value(signal.FieldChange24h))
	assert.Equal(t, 1250000.0, want.Value(signal.FieldTurnover24h))
	assert.Equal(t, 4312.0, want.Value(signal.FieldHolders))
	assert.Equal(t, time.Date(2024, 3, 1, 7, 59, 30, 0, time.UTC), want.RecordTime)
	for _, got := range results[1:] {
		assert.Equal(t, want, got)
	}
}

func TestMetric_AlternateFieldNamesSameConcept(t *testing.T) {
	n := New(Options{})

	latin, err := n.Metric(snapshot(`{"openInterest": 9e9}`), metricSource())
	require.NoError(t, err)
	localized, err := n.Metric(snapshot(`{"持仓量": 9e9}`), metricSource())
	require.NoError(t, err)

	assert.Equal(t, 9e9, latin.TotalPosition())
	assert.Equal(t, 9e9, localized.TotalPosition())
	assert.Equal(t, latin.Fields, localized.Fields)
}

func TestMetric_PrefersPresentNonNullName(t *testing.T) {
	n := New(Options{})

	m, err := n.Metric(snapshot(`{"openInterest": null, "持仓量": "92亿"}`), metricSource())
	require.NoError(t, err)
	assert.Equal(t, 9.2e9, m.TotalPosition())
}

func TestMetric_TolerantCoercion(t *testing.T) {
	n := New(Options{})

	m, err := n.Metric(snapshot(`{"openInterest": "n/a", "holders": "12万", "风险指数": true}`), metricSource())
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.TotalPosition())
	assert.Equal(t, 120000.0, m.Value(signal.FieldHolders))
	assert.Equal(t, 0.0, m.Value(signal.FieldRiskIndex))
	assert.Equal(t, fetchedAt, m.RecordTime, "missing record time falls back to fetch time")
}

func TestMetric_UnknownEnvelope(t *testing.T) {
	n := New(Options{})

	tests := map[string]string{
		"failed envelope": `{"success": false, "data": {"openInterest": 1}}`,
		"no known fields": `{"foo": 1, "bar": {"baz": 2}}`,
		"scalar":          `42`,
		"empty records":   `[]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := n.Metric(snapshot(body), metricSource())
			var nerr *NormalizeError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, "panic", nerr.FeedID)
			assert.ErrorIs(t, err, errors.ErrUnknownEnvelope)
		})
	}
}

func TestEvents_Envelopes(t *testing.T) {
	records := `[{"symbol": "BTC-USDT", "signal": "BUY", "timestamp": 1709280000, "price": 64000}]`
	payloads := map[string]string{
		"array":     records,
		"data":      `{"data": ` + records + `}`,
		"snapshots": `{"snapshots": ` + records + `}`,
		"coins":     `{"coins": ` + records + `}`,
		"signals":   `{"signals": ` + records + `, "count": 1}`,
	}

	n := New(Options{DefaultMidpoint: 0.5})
	for name, body := range payloads {
		t.Run(name, func(t *testing.T) {
			batch, err := n.Events(snapshot(body), eventSource())
			require.NoError(t, err)
			assert.Equal(t, name, batch.Envelope)
			require.Len(t, batch.Events, 1)

			ev := batch.Events[0]
			assert.Equal(t, signal.EventKindBuy, ev.Kind)
			assert.Equal(t, "BTC-USDT", ev.Subject)
			assert.Equal(t, time.Unix(1709280000, 0).UTC(), ev.OccurredAt)
			assert.Equal(t, "64000", ev.PrimaryAttribute())
			assert.Equal(t, "query", ev.FeedID)
		})
	}
}

func TestEvents_EmptyMatchedArray(t *testing.T) {
	n := New(Options{})

	batch, err := n.Events(snapshot(`{"data": []}`), eventSource())
	require.NoError(t, err)
	assert.Empty(t, batch.Events)
	assert.Empty(t, batch.Dropped)
}

func TestEvents_UnknownEnvelope(t *testing.T) {
	n := New(Options{})

	_, err := n.Events(snapshot(`{"result": {"items": []}}`), eventSource())
	assert.ErrorIs(t, err, errors.ErrUnknownEnvelope)

	_, err = n.Events(snapshot(`not json`), eventSource())
	assert.ErrorIs(t, err, errors.ErrUnknownEnvelope)
}

func TestEvents_PartialBatchResilience(t *testing.T) {
	var recs []string
	for i := 1; i <= 10; i++ {
		if i == 4 {
			recs = append(recs, fmt.Sprintf(`{"signal": "sell", "timestamp": %d}`, 1709280000+i))
			continue
		}
		recs = append(recs, fmt.Sprintf(`{"symbol": "C%d", "signal": "sell", "timestamp": %d}`, i, 1709280000+i))
	}

	n := New(Options{})
	batch, err := n.Events(snapshot("["+strings.Join(recs, ",")+"]"), eventSource())
	require.NoError(t, err)

	assert.Len(t, batch.Events, 9)
	assert.Equal(t, 10, batch.Total)
	require.Len(t, batch.Dropped, 1)
	assert.Equal(t, 3, batch.Dropped[0].Index)
	assert.Equal(t, "subject", batch.Dropped[0].Field)
	assert.ErrorIs(t, batch.Dropped[0], errors.ErrMissingIdentity)
}

func TestEvents_DropsUnparseableRecords(t *testing.T) {
	body := `[
		"oops",
		{"symbol": "ETH", "signal": "buy"},
		{"symbol": "ETH", "signal": "buy", "time": "yesterday"},
		{"symbol": "ETH", "time": "2024-03-01 09:00:00"},
		{"symbol": "ETH", "signal": "buy", "time": "2024-03-01 09:00:00"}
	]`

	batch, err := New(Options{}).Events(snapshot(body), eventSource())
	require.NoError(t, err)

	require.Len(t, batch.Events, 1)
	require.Len(t, batch.Dropped, 4)
	assert.Equal(t, "", batch.Dropped[0].Field)
	assert.Equal(t, "occurredAt", batch.Dropped[1].Field)
	assert.Equal(t, "occurredAt", batch.Dropped[2].Field)
	assert.Equal(t, "kind", batch.Dropped[3].Field)
}

func TestEvents_PositionClassification(t *testing.T) {
	body := `{"coins": [
		{"coin": "BTC", "position": 0.2, "ts": 1709280000000},
		{"coin": "ETH", "position": "0.5", "ts": 1709280000000},
		{"coin": "SOL", "位置": 0.45, "ts": 1709280000000}
	]}`

	n := New(Options{DefaultMidpoint: 0.5})
	batch, err := n.Events(snapshot(body), eventSource())
	require.NoError(t, err)
	require.Len(t, batch.Events, 3)
	assert.Equal(t, signal.EventKindBuy, batch.Events[0].Kind)
	assert.Equal(t, signal.EventKindSell, batch.Events[1].Kind, "at midpoint is sell")
	assert.Equal(t, signal.EventKindBuy, batch.Events[2].Kind)
	assert.Equal(t, time.UnixMilli(1709280000000).UTC(), batch.Events[0].OccurredAt)

	lower := 0.3
	src := eventSource()
	src.Midpoint = &lower
	batch, err = n.Events(snapshot(body), src)
	require.NoError(t, err)
	assert.Equal(t, signal.EventKindBuy, batch.Events[0].Kind)
	assert.Equal(t, signal.EventKindSell, batch.Events[2].Kind, "feed midpoint overrides default")
}

func TestEvents_LocalizedQueryRecords(t *testing.T) {
	body := `[{"时间": "2024-03-01 10:00:00", "实例": "match-17", "信号": "买入", "主标签": "over", "次标签": "2.5", "比分": "1-0", "实际": 3, "链接": "http://x.test/17"}]`

	batch, err := New(Options{}).Events(snapshot(body), eventSource())
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)

	ev := batch.Events[0]
	assert.Equal(t, "match-17", ev.Subject)
	assert.Equal(t, signal.EventKindBuy, ev.Kind)

	tag, ok := ev.AttrString("mainTag")
	assert.True(t, ok)
	assert.Equal(t, "over", tag)
	sub, ok := ev.AttrNumber("subTag")
	assert.True(t, ok)
	assert.Equal(t, 2.5, sub)
	link, _ := ev.AttrString("link")
	assert.Equal(t, "http://x.test/17", link)
	assert.Equal(t, "1-0", ev.PrimaryAttribute(), "score precedes actual")
	assert.NotContains(t, ev.Attributes, "信号")
}

func TestEvents_ConfiguredPrimaryAttribute(t *testing.T) {
	body := `[{"symbol": "BTC", "side": "long", "time": 1709280000, "price": 1, "实际": 7}]`
	src := eventSource()
	src.PrimaryAttribute = "实际"

	batch, err := New(Options{}).Events(snapshot(body), src)
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, "7", batch.Events[0].PrimaryAttribute())
}

func TestEvents_RepeatedPollsShareFingerprints(t *testing.T) {
	body := `{"data": [{"symbol": "BTC", "signal": "buy", "timestamp": "2024-03-01T09:00:00Z", "price": 64000}]}`
	n := New(Options{})

	first, err := n.Events(snapshot(body), eventSource())
	require.NoError(t, err)
	later := snapshot(body)
	later.FetchedAt = fetchedAt.Add(30 * time.Second)
	second, err := n.Events(later, eventSource())
	require.NoError(t, err)

	assert.Equal(t, first.Events[0].Fingerprint(), second.Events[0].Fingerprint())
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{" 1,234.5 ", 1234.5, true},
		{"$5", 5, true},
		{"-3.5%", -3.5, true},
		{"+7", 7, true},
		{"92亿", 9.2e9, true},
		{"1.5万", 15000, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
