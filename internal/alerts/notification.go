package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalwatch/internal/domain/signal"
)

// DefaultPreviewLimit is the number of subjects listed in a notification
const DefaultPreviewLimit = 8

// Notification is one user-facing alert for a batch of novel events of one kind
type Notification struct {
	ID        string                  `json:"id"`
	FeedID    string                  `json:"feedId"`
	Kind      signal.EventKind        `json:"kind"`
	Title     string                  `json:"title"`
	Count     int                     `json:"count"`
	Preview   []string                `json:"preview"`
	More      int                     `json:"more"`
	Summary   string                  `json:"summary,omitempty"`
	Events    []signal.CanonicalEvent `json:"events"`
	CreatedAt time.Time               `json:"createdAt"`
}

// NewNotification builds the notification for events. Subjects keep event order.
func NewNotification(kind signal.EventKind, events []signal.CanonicalEvent, previewLimit int, now time.Time) Notification {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}

	shown := events
	if len(shown) > previewLimit {
		shown = shown[:previewLimit]
	}

	n := Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title(kind, len(events)),
		Count:     len(events),
		Preview:   make([]string, 0, len(shown)),
		Events:    make([]signal.CanonicalEvent, 0, len(shown)),
		CreatedAt: now.UTC(),
	}
	if len(events) > 0 {
		n.FeedID = events[0].FeedID
	}
	for _, ev := range shown {
		n.Preview = append(n.Preview, ev.Subject)
		n.Events = append(n.Events, ev.Clone())
	}

	n.More = n.Count - len(n.Preview)
	if n.More > 0 {
		n.Summary = fmt.Sprintf("+%d more", n.More)
	}
	return n
}

func title(kind signal.EventKind, count int) string {
	noun := "signal"
	if count != 1 {
		noun = "signals"
	}
	return fmt.Sprintf("%d new %s %s", count, kind, noun)
}
