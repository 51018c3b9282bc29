package normalize

import (
	"fmt"

	"signalwatch/pkg/errors"
)

// NormalizeError means the payload as a whole matched no known shape
type NormalizeError struct {
	FeedID string
	Reason string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.FeedID, e.Reason)
}

func (e *NormalizeError) Unwrap() error {
	return errors.ErrUnknownEnvelope
}

// PartialRecordError describes one record dropped from an otherwise valid batch
type PartialRecordError struct {
	FeedID string
	Index  int
	Field  string
	Reason string
}

func (e *PartialRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("normalize %s: record %d: %s", e.FeedID, e.Index, e.Reason)
	}
	return fmt.Sprintf("normalize %s: record %d: field %s: %s", e.FeedID, e.Index, e.Field, e.Reason)
}

func (e *PartialRecordError) Unwrap() error {
	return errors.ErrMissingIdentity
}
