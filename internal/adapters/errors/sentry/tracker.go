package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"signalwatch/internal/adapters/config"
	"signalwatch/pkg/errors"
)

// Compile-time check
var _ errors.Tracker = (*Tracker)(nil)

const defaultFlushTimeout = 2 * time.Second

// Tracker implements error tracking via Sentry
type Tracker struct {
	hub *sentry.Hub
}

// New creates a new Sentry tracker
func New(cfg config.ErrorTrackingConfig, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to init sentry")
	}

	return &Tracker{
		hub: sentry.CurrentHub(),
	}, nil
}

// CaptureError sends an error to Sentry. Tags such as feed and component are
// set on a cloned scope so they do not leak into later events.
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
	})

	hub.CaptureException(err)
	return nil
}

// SetTag sets a tag on every later event
func (t *Tracker) SetTag(key, value string) {
	t.hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(key, value)
	})
}

// Flush waits for pending events until ctx expires or two seconds pass
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := defaultFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !sentry.Flush(timeout) {
		return errors.Wrapf(errors.ErrTimeout, "sentry flush")
	}
	return nil
}
