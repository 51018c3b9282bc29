package normalize

import (
	"strings"

	"github.com/tidwall/gjson"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/logger"
)

var (
	subjectNames    = []string{"subject", "symbol", "instId", "coin", "instance", "实例", "币种"}
	occurredAtNames = []string{"occurredAt", "timestamp", "time", "ts", "时间"}
	kindNames       = []string{"kind", "signal", "side", "type", "信号", "方向"}
	positionNames   = []string{"position", "distance", "位置"}

	defaultPrimaryNames = []string{"price", "score", "actual"}
)

// attributeAliases maps localized or legacy keys onto canonical attribute names
var attributeAliases = map[string]string{
	"主标签": "mainTag",
	"次标签": "subTag",
	"比分":  "score",
	"实际":  "actual",
	"链接":  "link",
	"url": "link",
	"价格":  "price",
	"位置":  "position",
}

var kindValues = map[string]signal.EventKind{
	"buy":   signal.EventKindBuy,
	"long":  signal.EventKindBuy,
	"买入":    signal.EventKindBuy,
	"做多":    signal.EventKindBuy,
	"sell":  signal.EventKindSell,
	"short": signal.EventKindSell,
	"卖出":    signal.EventKindSell,
	"做空":    signal.EventKindSell,
}

// eventEnvelopes are tried in order; the first structural match wins even
// when its array is empty
var eventEnvelopes = []envelope{
	{name: "array", match: matchArray},
	{name: "data", match: matchKeyedArray("data")},
	{name: "snapshots", match: matchKeyedArray("snapshots")},
	{name: "coins", match: matchKeyedArray("coins")},
	{name: "signals", match: matchKeyedArray("signals")},
}

func matchArray(root gjson.Result) (gjson.Result, bool) {
	return root, root.IsArray()
}

func matchKeyedArray(key string) func(gjson.Result) (gjson.Result, bool) {
	return func(root gjson.Result) (gjson.Result, bool) {
		if !root.IsObject() {
			return gjson.Result{}, false
		}
		v, ok := root.Map()[key]
		if !ok || !v.IsArray() {
			return gjson.Result{}, false
		}
		return v, true
	}
}

// EventBatch is the outcome of normalizing one occurrence-style payload
type EventBatch struct {
	FeedID   string
	Envelope string
	Total    int
	Events   []signal.CanonicalEvent
	Dropped  []*PartialRecordError
}

// Options tunes normalization defaults
type Options struct {
	// DefaultMidpoint classifies position-style records for feeds without their own midpoint
	DefaultMidpoint float64
}

// Normalizer maps upstream payloads onto canonical metrics and events.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	defaultMidpoint float64
	log             *logger.Logger
}

// New creates a Normalizer
func New(opts Options) *Normalizer {
	return &Normalizer{
		defaultMidpoint: opts.DefaultMidpoint,
		log:             logger.Get().With("component", "normalizer"),
	}
}

// Events normalizes an occurrence-style payload. Broken records end up in
// EventBatch.Dropped; an unrecognized payload returns a *NormalizeError.
func (n *Normalizer) Events(snap signal.RawSnapshot, source signal.FeedSource) (EventBatch, error) {
	if !gjson.ValidBytes(snap.Body) {
		return EventBatch{}, &NormalizeError{FeedID: source.ID, Reason: "payload is not valid JSON"}
	}
	root := gjson.ParseBytes(snap.Body)

	for _, env := range eventEnvelopes {
		records, ok := env.match(root)
		if !ok {
			continue
		}
		batch := n.buildBatch(records, source)
		batch.Envelope = env.name
		return batch, nil
	}

	return EventBatch{}, &NormalizeError{FeedID: source.ID, Reason: "no known event envelope matched"}
}

func (n *Normalizer) buildBatch(records gjson.Result, source signal.FeedSource) EventBatch {
	batch := EventBatch{FeedID: source.ID}
	midpoint := n.defaultMidpoint
	if source.Midpoint != nil {
		midpoint = *source.Midpoint
	}

	index := 0
	records.ForEach(func(_, rec gjson.Result) bool {
		ev, perr := buildEvent(rec, index, source, midpoint)
		if perr != nil {
			batch.Dropped = append(batch.Dropped, perr)
		} else {
			batch.Events = append(batch.Events, ev)
		}
		index++
		return true
	})
	batch.Total = index
	return batch
}

func buildEvent(rec gjson.Result, index int, source signal.FeedSource, midpoint float64) (signal.CanonicalEvent, *PartialRecordError) {
	drop := func(field, reason string) (signal.CanonicalEvent, *PartialRecordError) {
		return signal.CanonicalEvent{}, &PartialRecordError{FeedID: source.ID, Index: index, Field: field, Reason: reason}
	}

	if !rec.IsObject() {
		return drop("", "record is not an object")
	}
	obj := rec.Map()

	subjectKey, subjectVal, ok := lookup(obj, subjectNames)
	subject := strings.TrimSpace(subjectVal.String())
	if !ok || subject == "" {
		return drop("subject", "missing")
	}

	timeKey, timeVal, ok := lookup(obj, occurredAtNames)
	if !ok {
		return drop("occurredAt", "missing")
	}
	occurredAt, ok := toTime(timeVal)
	if !ok {
		return drop("occurredAt", "unparseable timestamp "+timeVal.Raw)
	}

	kind, kindKey, ok := classify(obj, midpoint)
	if !ok {
		return drop("kind", "no buy/sell tag or position value")
	}

	skip := map[string]bool{subjectKey: true, timeKey: true}
	if kindKey != "" {
		skip[kindKey] = true
	}
	attrs := make(map[string]any, len(obj))
	rec.ForEach(func(k, v gjson.Result) bool {
		key := k.Str
		if skip[key] {
			return true
		}
		if alias, ok := attributeAliases[key]; ok {
			key = alias
		}
		if _, exists := attrs[key]; !exists {
			attrs[key] = toAttr(v)
		}
		return true
	})

	return signal.NewEvent(source.ID, kind, occurredAt, subject, attrs, primaryAttribute(attrs, source.PrimaryAttribute)), nil
}

// classify returns the event kind from an explicit tag or, failing that, from
// the record's position relative to midpoint. kindKey is the tag key used.
func classify(obj map[string]gjson.Result, midpoint float64) (signal.EventKind, string, bool) {
	if key, v, ok := lookup(obj, kindNames); ok {
		if kind, known := kindValues[strings.ToLower(strings.TrimSpace(v.String()))]; known {
			return kind, key, true
		}
	}
	if _, v, ok := lookup(obj, positionNames); ok {
		if pos, ok := toNumber(v); ok {
			if pos < midpoint {
				return signal.EventKindBuy, "", true
			}
			return signal.EventKindSell, "", true
		}
	}
	return "", "", false
}

func primaryAttribute(attrs map[string]any, configured string) string {
	if configured != "" {
		if alias, ok := attributeAliases[configured]; ok {
			configured = alias
		}
		return formatAttr(attrs[configured])
	}
	for _, name := range defaultPrimaryNames {
		if v, ok := attrs[name]; ok {
			return formatAttr(v)
		}
	}
	return ""
}
