package noop

import (
	"context"

	"signalwatch/pkg/errors"
)

// Compile-time check
var _ errors.Tracker = (*Tracker)(nil)

// Tracker discards everything. It backs the logger when error tracking is disabled.
type Tracker struct{}

// New creates a new no-op tracker
func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) CaptureError(context.Context, error, map[string]string) error { return nil }

func (t *Tracker) SetTag(string, string) {}

func (t *Tracker) Flush(context.Context) error { return nil }
