package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiError(t *testing.T) {
	var errs MultiError
	errs.Add(nil)
	assert.NoError(t, errs.ToError(), "nil errors are ignored")

	errs.Add(Wrapf(ErrNotFound, "feed %s", "panic"))
	errs.Add(NewValidationError("feeds[1].id", "duplicate", "query"))

	err := errs.ToError()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var verr *ValidationError
	require.True(t, As(err, &verr))
	assert.Equal(t, "feeds[1].id", verr.Field)
	assert.Contains(t, err.Error(), "multiple errors (2)")
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
	assert.NoError(t, Wrapf(nil, "ignored %d", 1))

	err := Wrap(ErrTimeout, "sentry flush")
	assert.True(t, Is(err, ErrTimeout))
	assert.Equal(t, "sentry flush: operation timeout", err.Error())
}
