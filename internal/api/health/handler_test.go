package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type states []signal.ScheduleState

func (s states) States() []signal.ScheduleState { return s }

func serve(t *testing.T, fn http.HandlerFunc) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return rec.Code, status
}

func TestHandleHealth(t *testing.T) {
	down := signal.ScheduleState{FeedID: "query", ConsecutiveFailures: 3, UnreachableAfter: 3}
	up := signal.ScheduleState{FeedID: "panic", UnreachableAfter: 3}

	tests := []struct {
		name   string
		store  error
		feeds  states
		code   int
		status string
	}{
		{"healthy", nil, states{up}, http.StatusOK, "healthy"},
		{"feed unreachable", nil, states{up, down}, http.StatusOK, "degraded"},
		{"store down", errors.New("connection refused"), states{up}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(logger.Nop(), pinger{tt.store}, "sqlite", tt.feeds, "signalwatch", "test")
			code, status := serve(t, h.HandleHealth)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, status.Status)
		})
	}
}

func TestHandleHealth_ListsUnreachableFeeds(t *testing.T) {
	down := signal.ScheduleState{FeedID: "query", ConsecutiveFailures: 5, UnreachableAfter: 3}
	h := New(logger.Nop(), pinger{}, "sqlite", states{down}, "signalwatch", "test")

	_, status := serve(t, h.HandleHealth)
	assert.Equal(t, []string{"query"}, status.Unreachable)
}

func TestHandleReadiness(t *testing.T) {
	down := signal.ScheduleState{FeedID: "query", ConsecutiveFailures: 5, UnreachableAfter: 3}

	h := New(logger.Nop(), pinger{}, "sqlite", states{down}, "signalwatch", "test")
	code, _ := serve(t, h.HandleReadiness)
	assert.Equal(t, http.StatusOK, code, "feeds do not gate readiness")

	h = New(logger.Nop(), pinger{errors.New("locked")}, "sqlite", nil, "signalwatch", "test")
	code, status := serve(t, h.HandleReadiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "locked", status.Checks["sqlite"].Error)
}

func TestHandleLiveness(t *testing.T) {
	h := New(logger.Nop(), nil, "memory", nil, "signalwatch", "test")
	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
