package feeds

import (
	"fmt"

	"signalwatch/pkg/errors"
)

// ErrorKind classifies why a fetch failed
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindHTTPStatus ErrorKind = "http_status"
	KindDecode     ErrorKind = "decode"
)

// FetchError is returned by Client.Fetch for every failure
type FetchError struct {
	Kind       ErrorKind
	FeedID     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("fetch %s: upstream returned status %d", e.FeedID, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.FeedID, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.FeedID, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is maps timeouts onto the shared sentinel
func (e *FetchError) Is(target error) bool {
	return e.Kind == KindTimeout && target == errors.ErrTimeout
}

// KindOf returns the kind of a FetchError in err's chain, or "" when there is none
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
