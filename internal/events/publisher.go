package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"signalwatch/internal/alerts"
	"signalwatch/pkg/errors"
)

// EventTypeAlert is the envelope type of an alert notification
const EventTypeAlert = "signal.alert"

const eventVersion = "1.0"

// Producer publishes one keyed message, implemented by kafka.Producer
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// BaseEvent is the common envelope of every published event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, source string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   eventVersion,
	}
}

// AlertEvent is the message written for one notification
type AlertEvent struct {
	Base         BaseEvent           `json:"base"`
	Notification alerts.Notification `json:"notification"`
}

// AlertPublisher forwards notifications to a Kafka topic
type AlertPublisher struct {
	producer Producer
	topic    string
	source   string
}

// NewAlertPublisher creates a notifier publishing to topic. A nil producer disables it.
func NewAlertPublisher(producer Producer, topic, source string) *AlertPublisher {
	return &AlertPublisher{producer: producer, topic: topic, source: source}
}

// Notify publishes n keyed by its id
func (p *AlertPublisher) Notify(ctx context.Context, n alerts.Notification) error {
	if p.producer == nil {
		return errors.ErrSinkDisabled
	}

	event := AlertEvent{
		Base:         NewBaseEvent(EventTypeAlert, p.source),
		Notification: n,
	}
	if err := p.producer.Publish(ctx, p.topic, n.ID, event); err != nil {
		return errors.Wrap(err, "publish alert")
	}
	return nil
}
