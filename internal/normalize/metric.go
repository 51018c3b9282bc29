package normalize

import (
	"time"

	"github.com/tidwall/gjson"

	"signalwatch/internal/domain/signal"
)

// metricFieldNames lists every accepted upstream name per canonical field,
// latin names first
var metricFieldNames = map[string][]string{
	signal.FieldTotalPosition: {"openInterest", "totalPosition", "持仓量"},
	signal.FieldChange24h:     {"change24h", "24h涨跌幅"},
	signal.FieldTurnover24h:   {"volume24h", "turnover24h", "24h成交额"},
	signal.FieldVolume24h:     {"volume", "24h成交量"},
	signal.FieldHolders:       {"holders", "持仓人数"},
	signal.FieldPositionRatio: {"openInterestRatio", "positionRatio", "持仓量占比"},
	signal.FieldRiskIndex:     {"riskIndex", "风险指数"},
}

var recordTimeNames = []string{"recordTime", "timestamp", "time", "时间", "记录时间"}

// envelope extracts a candidate payload from the decoded root
type envelope struct {
	name  string
	match func(root gjson.Result) (gjson.Result, bool)
}

// metricEnvelopes are tried in order; the first candidate that carries at
// least one metric field wins
var metricEnvelopes = []envelope{
	{name: "object", match: matchObject},
	{name: "success_data", match: matchSuccessData},
	{name: "records", match: matchFirstRecord},
	{name: "snapshots", match: matchFirstSnapshot},
}

func matchObject(root gjson.Result) (gjson.Result, bool) {
	return root, root.IsObject()
}

func matchSuccessData(root gjson.Result) (gjson.Result, bool) {
	if !root.IsObject() {
		return gjson.Result{}, false
	}
	obj := root.Map()
	if ok, has := obj["success"]; has && ok.Type != gjson.True {
		return gjson.Result{}, false
	}
	data, has := obj["data"]
	if !has || !data.IsObject() {
		return gjson.Result{}, false
	}
	return data, true
}

func matchFirstRecord(root gjson.Result) (gjson.Result, bool) {
	if !root.IsArray() {
		return gjson.Result{}, false
	}
	return firstObject(root)
}

func matchFirstSnapshot(root gjson.Result) (gjson.Result, bool) {
	if !root.IsObject() {
		return gjson.Result{}, false
	}
	snaps, has := root.Map()["snapshots"]
	if !has || !snaps.IsArray() {
		return gjson.Result{}, false
	}
	return firstObject(snaps)
}

func firstObject(arr gjson.Result) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

// extractMetric reads every canonical field from one candidate object
func extractMetric(candidate gjson.Result, fallback time.Time) (map[string]float64, time.Time, bool) {
	obj := candidate.Map()
	fields := make(map[string]float64, len(metricFieldNames))
	matched := false

	for canonical, names := range metricFieldNames {
		_, v, ok := lookup(obj, names)
		if !ok {
			fields[canonical] = 0
			continue
		}
		matched = true
		fields[canonical], _ = toNumber(v)
	}
	if !matched {
		return nil, time.Time{}, false
	}

	recordTime := fallback
	if _, v, ok := lookup(obj, recordTimeNames); ok {
		if t, ok := toTime(v); ok {
			recordTime = t
		}
	}
	return fields, recordTime, true
}

// Metric normalizes a gauge-style payload
func (n *Normalizer) Metric(snap signal.RawSnapshot, source signal.FeedSource) (signal.CanonicalMetric, error) {
	if !gjson.ValidBytes(snap.Body) {
		return signal.CanonicalMetric{}, &NormalizeError{FeedID: source.ID, Reason: "payload is not valid JSON"}
	}
	root := gjson.ParseBytes(snap.Body)

	for _, env := range metricEnvelopes {
		candidate, ok := env.match(root)
		if !ok {
			continue
		}
		fields, recordTime, ok := extractMetric(candidate, snap.FetchedAt)
		if !ok {
			continue
		}
		n.log.Debug("Metric normalized", "feed", source.ID, "envelope", env.name)
		return signal.CanonicalMetric{
			FeedID:     source.ID,
			Fields:     fields,
			RecordTime: recordTime.UTC(),
		}, nil
	}

	return signal.CanonicalMetric{}, &NormalizeError{FeedID: source.ID, Reason: "no known metric envelope matched"}
}
