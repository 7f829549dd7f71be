package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
)

// source tags every envelope published by this service.
const source = "cardiorisk"

// New creates the event bus named by cfg.Type: "channel" for the in-process
// Community bus or "nats" for the Pro bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage wraps payload in an envelope. The trace of the publishing
// request, if any, travels in the metadata so a worker can correlate its logs.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{domain.MetaSource: source},
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[domain.MetaTraceID] = sc.TraceID().String()
	}
	return msg
}

func countPublish(topic, result string) {
	metrics.EventsPublished.WithLabelValues(topic, result).Inc()
}
