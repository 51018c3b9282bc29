package errors

import (
	"context"
)

// Tracker reports errors to an external service such as Sentry
type Tracker interface {
	// CaptureError sends an error with per-event tags
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// SetTag attaches a tag to every subsequent event of the tracker
	SetTag(key, value string)

	// Flush waits for pending events
	Flush(ctx context.Context) error
}
