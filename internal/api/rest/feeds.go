package rest

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"signalwatch/internal/countdown"
	"signalwatch/internal/domain/signal"
	"signalwatch/internal/services/dashboard"
	"signalwatch/pkg/logger"
)

// Views lists the dashboard cards
type Views interface {
	Snapshot() []dashboard.FeedView
}

// Scheduler exposes schedule state and manual refresh
type Scheduler interface {
	State(feedID string) (signal.ScheduleState, bool)
	Refresh(feedID string) error
}

// FeedCard is a FeedView plus the display-only values derived at request time
type FeedCard struct {
	dashboard.FeedView
	SecondsRemaining int               `json:"secondsRemaining"`
	LastSuccessAgo   string            `json:"lastSuccessAgo"`
	Display          map[string]string `json:"display,omitempty"`
}

// FeedsHandler serves the dashboard cards and manual refresh
type FeedsHandler struct {
	views     Views
	scheduler Scheduler
	now       func() time.Time
	log       *logger.Logger
}

// NewFeedsHandler creates the feeds handler
func NewFeedsHandler(views Views, scheduler Scheduler) *FeedsHandler {
	return &FeedsHandler{
		views:     views,
		scheduler: scheduler,
		now:       time.Now,
		log:       logger.Get().With("component", "api_feeds"),
	}
}

// Cards builds every card as of now
func (h *FeedsHandler) Cards() []FeedCard {
	now := h.now()
	views := h.views.Snapshot()
	cards := make([]FeedCard, 0, len(views))
	for _, v := range views {
		card := FeedCard{FeedView: v, LastSuccessAgo: "never"}
		if st, ok := h.scheduler.State(v.Source.ID); ok {
			card.SecondsRemaining = countdown.SecondsRemaining(st, now)
		}
		if !v.LastSuccessfulFetchAt.IsZero() {
			card.LastSuccessAgo = humanize.RelTime(v.LastSuccessfulFetchAt, now, "ago", "from now")
		}
		if v.Metric != nil {
			card.Display = make(map[string]string, len(v.Metric.Fields))
			for name, value := range v.Metric.Fields {
				card.Display[name] = dashboard.FormatCompact(value)
			}
		}
		cards = append(cards, card)
	}
	return cards
}

// HandleList serves GET /api/feeds
func (h *FeedsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cards())
}

// HandleRefresh serves POST /api/feeds/{id}/refresh
func (h *FeedsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.scheduler.Refresh(id); err != nil {
		h.log.Debug("Refresh rejected", "feed", id, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "feed": id})
}
