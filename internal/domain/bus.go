package domain

import (
	"context"
	"errors"
)

// Publish outcomes that leave a message undelivered.
var (
	ErrNoSubscribers = errors.New("no subscribers for topic")
	ErrEventDropped  = errors.New("event dropped")
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" mapstructure:"natsUrl"`
	NATSToken         string `json:"-" mapstructure:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances record submissions across scoring
	// workers. Event topics are always fanned out to every subscriber.
	NATSQueueGroup string `json:"natsQueueGroup" mapstructure:"natsQueueGroup"`
}

// Standard topic names.
const (
	TopicRecordSubmitted     = "cardiorisk.record.submitted"
	TopicPredictionCompleted = "cardiorisk.prediction.completed"
	TopicHighRiskAlert       = "cardiorisk.alert.high_risk"
)

// Message metadata keys.
const (
	MetaTraceID = "trace_id"
	MetaSource  = "source"
)

// RecordSubmission is the payload of TopicRecordSubmitted.
type RecordSubmission struct {
	SubmissionID string    `json:"submissionId"`
	Record       RawRecord `json:"record"`
}

// PredictionEvent is the payload of TopicPredictionCompleted and TopicHighRiskAlert.
type PredictionEvent struct {
	PredictionID string           `json:"predictionId"`
	SubmissionID string           `json:"submissionId,omitempty"`
	BatchID      string           `json:"batchId,omitempty"`
	ModelVersion string           `json:"modelVersion"`
	Result       PredictionResult `json:"result"`
}
