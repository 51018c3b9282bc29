package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicAlerts carries one message per alert notification, keyed by notification id
	TopicAlerts = "signals.alerts"
)
