package signal

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"time"

	"signalwatch/pkg/errors"
)

// FeedKind selects how a feed's payload is normalized
type FeedKind string

const (
	FeedKindMetric FeedKind = "metric" // gauge-style, one current value
	FeedKindEvents FeedKind = "events" // occurrence-style, discrete signals
)

// Valid reports whether the kind is known
func (k FeedKind) Valid() bool {
	return k == FeedKindMetric || k == FeedKindEvents
}

// EventKind is the direction of a discrete signal
type EventKind string

const (
	EventKindBuy  EventKind = "buy"
	EventKindSell EventKind = "sell"
)

// Gate highlights a metric card while Field stays below the given value
type Gate struct {
	Field string  `json:"field" yaml:"field"`
	Below float64 `json:"below" yaml:"below"`
}

// FeedSource identifies one upstream endpoint. It is changed only by user
// configuration, never by the poller.
type FeedSource struct {
	ID                     string   `json:"id" yaml:"id"`
	URL                    string   `json:"url" yaml:"url"`
	RefreshIntervalSeconds int      `json:"refreshIntervalSeconds" yaml:"refreshIntervalSeconds"`
	Kind                   FeedKind `json:"kind" yaml:"kind"`

	// Midpoint is the buy/sell threshold for position-style event feeds.
	// Nil falls back to the process-wide default.
	Midpoint *float64 `json:"midpoint,omitempty" yaml:"midpoint,omitempty"`

	// PrimaryAttribute names the attribute that takes part in the fingerprint
	PrimaryAttribute string `json:"primaryAttribute,omitempty" yaml:"primaryAttribute,omitempty"`

	Gate *Gate `json:"gate,omitempty" yaml:"gate,omitempty"`
}

// Interval returns the refresh interval as a duration
func (s FeedSource) Interval() time.Duration {
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}

// Clone returns a deep copy
func (s FeedSource) Clone() FeedSource {
	out := s
	if s.Midpoint != nil {
		m := *s.Midpoint
		out.Midpoint = &m
	}
	if s.Gate != nil {
		g := *s.Gate
		out.Gate = &g
	}
	return out
}

// SameEndpoint reports whether two sources poll the same thing the same way
func (s FeedSource) SameEndpoint(other FeedSource) bool {
	return s.ID == other.ID && s.URL == other.URL && s.Kind == other.Kind
}

// Equal reports whether two sources are identical in every setting
func (s FeedSource) Equal(other FeedSource) bool {
	if !s.SameEndpoint(other) ||
		s.RefreshIntervalSeconds != other.RefreshIntervalSeconds ||
		s.PrimaryAttribute != other.PrimaryAttribute {
		return false
	}
	if (s.Midpoint == nil) != (other.Midpoint == nil) ||
		(s.Midpoint != nil && *s.Midpoint != *other.Midpoint) {
		return false
	}
	if (s.Gate == nil) != (other.Gate == nil) ||
		(s.Gate != nil && *s.Gate != *other.Gate) {
		return false
	}
	return true
}

// Validate checks the fields every feed source needs
func (s FeedSource) Validate() error {
	var errs errors.MultiError
	if s.ID == "" {
		errs.Add(errors.NewValidationError("id", "required", s.ID))
	}
	if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(errors.NewValidationError("url", "must be an absolute http(s) URL", s.URL))
	}
	if s.RefreshIntervalSeconds < 1 {
		errs.Add(errors.NewValidationError("refreshIntervalSeconds", "must be at least 1", s.RefreshIntervalSeconds))
	}
	if !s.Kind.Valid() {
		errs.Add(errors.NewValidationError("kind", fmt.Sprintf("must be %q or %q", FeedKindMetric, FeedKindEvents), s.Kind))
	}
	if errs.HasErrors() {
		return errors.Wrapf(errors.ErrInvalidInput, "feed %q: %v", s.ID, errs.ToError())
	}
	return nil
}

// RawSnapshot is one undecoded poll result
type RawSnapshot struct {
	FeedID     string
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// Canonical metric field names
const (
	FieldTotalPosition = "totalPosition"
	FieldChange24h     = "change24h"
	FieldTurnover24h   = "turnover24h"
	FieldVolume24h     = "volume24h"
	FieldHolders       = "holders"
	FieldPositionRatio = "positionRatio"
	FieldRiskIndex     = "riskIndex"
)

// CanonicalMetric is the schema-stable form of a gauge-style feed payload
type CanonicalMetric struct {
	FeedID     string             `json:"feedId"`
	Fields     map[string]float64 `json:"fields"`
	RecordTime time.Time          `json:"recordTime"`
}

// Value returns the named field, zero when absent
func (m CanonicalMetric) Value(name string) float64 {
	return m.Fields[name]
}

// TotalPosition returns the open interest figure
func (m CanonicalMetric) TotalPosition() float64 {
	return m.Fields[FieldTotalPosition]
}

// Clone returns a deep copy
func (m CanonicalMetric) Clone() CanonicalMetric {
	out := m
	out.Fields = maps.Clone(m.Fields)
	return out
}

// CanonicalEvent is one discrete signal. Attribute values are either string
// or float64. Construct with NewEvent; fields must not be changed afterwards.
type CanonicalEvent struct {
	FeedID     string         `json:"feedId"`
	Kind       EventKind      `json:"kind"`
	OccurredAt time.Time      `json:"occurredAt"`
	Subject    string         `json:"subject"`
	Attributes map[string]any `json:"attributes,omitempty"`

	primary     string
	fingerprint Fingerprint
}

// NewEvent builds an event and derives its fingerprint from primary
func NewEvent(feedID string, kind EventKind, occurredAt time.Time, subject string, attrs map[string]any, primary string) CanonicalEvent {
	ev := CanonicalEvent{
		FeedID:     feedID,
		Kind:       kind,
		OccurredAt: occurredAt.UTC(),
		Subject:    subject,
		Attributes: maps.Clone(attrs),
		primary:    primary,
	}
	ev.fingerprint = NewFingerprint(ev.Kind, ev.OccurredAt, ev.Subject, primary)
	return ev
}

// Fingerprint returns the deduplication key of the event
func (e CanonicalEvent) Fingerprint() Fingerprint {
	if e.fingerprint == "" {
		return NewFingerprint(e.Kind, e.OccurredAt, e.Subject, e.primary)
	}
	return e.fingerprint
}

// PrimaryAttribute returns the attribute value folded into the fingerprint
func (e CanonicalEvent) PrimaryAttribute() string {
	return e.primary
}

// AttrString returns a string attribute
func (e CanonicalEvent) AttrString(key string) (string, bool) {
	v, ok := e.Attributes[key].(string)
	return v, ok
}

// AttrNumber returns a numeric attribute
func (e CanonicalEvent) AttrNumber(key string) (float64, bool) {
	v, ok := e.Attributes[key].(float64)
	return v, ok
}

// MarshalJSON includes the derived primary attribute and fingerprint
func (e CanonicalEvent) MarshalJSON() ([]byte, error) {
	type plain CanonicalEvent
	return json.Marshal(struct {
		plain
		Primary     string      `json:"primary,omitempty"`
		Fingerprint Fingerprint `json:"fingerprint"`
	}{plain(e), e.primary, e.Fingerprint()})
}

// Clone returns a copy that shares nothing mutable with e
func (e CanonicalEvent) Clone() CanonicalEvent {
	out := e
	out.Attributes = maps.Clone(e.Attributes)
	return out
}

// Phase is the poll state of one feed
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseFailed   Phase = "failed"
)

// DefaultUnreachableAfter is the consecutive failure count that marks a feed unreachable
const DefaultUnreachableAfter = 3

// ScheduleState is the per-feed poll bookkeeping owned by the scheduler.
// A zero LastSuccessfulFetchAt means the feed never succeeded.
type ScheduleState struct {
	FeedID                string        `json:"feedId"`
	LastSuccessfulFetchAt time.Time     `json:"lastSuccessfulFetchAt"`
	Interval              time.Duration `json:"interval"`
	IsFetching            bool          `json:"isFetching"`

	Phase               Phase     `json:"phase"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	UnreachableAfter    int       `json:"unreachableAfter"`
	LastAttemptAt       time.Time `json:"lastAttemptAt"`
	LastError           string    `json:"lastError,omitempty"`
	NextFetchAt         time.Time `json:"nextFetchAt"`
}

// IntervalSeconds returns the interval in whole seconds
func (s ScheduleState) IntervalSeconds() int {
	return int(s.Interval / time.Second)
}

// HasSucceeded reports whether any fetch completed successfully
func (s ScheduleState) HasSucceeded() bool {
	return !s.LastSuccessfulFetchAt.IsZero()
}

// Unreachable reports whether the feed crossed the consecutive failure threshold
func (s ScheduleState) Unreachable() bool {
	threshold := s.UnreachableAfter
	if threshold <= 0 {
		threshold = DefaultUnreachableAfter
	}
	return s.ConsecutiveFailures >= threshold
}
