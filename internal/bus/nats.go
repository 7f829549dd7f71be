package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
)

// NATSBus implements EventBus using NATS core subjects. Record submissions
// are consumed through a queue group so each one is scored by a single
// worker; prediction events reach every subscriber.
type NATSBus struct {
	mu            sync.Mutex
	conn          *nats.Conn
	queueGroup    string
	subscriptions map[string]*natsSubscription
}

type natsSubscription struct {
	id    string
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to NATS, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = 5
	}

	conn, err := connectNATS(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)

	return &NATSBus{
		conn:          conn,
		queueGroup:    cfg.NATSQueueGroup,
		subscriptions: make(map[string]*natsSubscription),
	}, nil
}

func natsOptions(cfg domain.EventBusConfig) []nats.Option {
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	opts := []nats.Option{
		nats.Name(source),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected",
				"error", err,
				"will_reconnect", !nc.IsClosed(),
			)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			level := slog.LevelError
			if errors.Is(err, nats.ErrSlowConsumer) {
				level = slog.LevelWarn
			}
			slog.Log(context.Background(), level, "NATS error",
				"error", err,
				"subject", subject,
			)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

func connectNATS(cfg domain.EventBusConfig) (*nats.Conn, error) {
	opts := natsOptions(cfg)
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	var err error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		var conn *nats.Conn
		conn, err = nats.Connect(cfg.NATSUrl, opts...)
		if err == nil {
			return conn, nil
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
}

// Publish sends a message envelope to the NATS subject named by topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(newMessage(ctx, topic, payload))
	if err != nil {
		countPublish(topic, metrics.PublishError)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.conn.Publish(topic, data); err != nil {
		countPublish(topic, metrics.PublishError)
		return err
	}
	countPublish(topic, metrics.PublishOK)
	return nil
}

// Subscribe registers a handler for a NATS subject. Record submissions join
// the configured queue group.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	cb := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("failed to unmarshal NATS message",
				"subject", m.Subject,
				"error", err,
			)
			return
		}

		if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"message_id", msg.ID,
				"trace_id", msg.Metadata[domain.MetaTraceID],
				"error", err,
			)
		}
	}

	var natsSub *nats.Subscription
	var err error
	if group := b.groupFor(topic); group != "" {
		natsSub, err = b.conn.QueueSubscribe(topic, group, cb)
	} else {
		natsSub, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &natsSubscription{
		id:    uuid.New().String(),
		topic: topic,
		sub:   natsSub,
		bus:   b,
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

func (b *NATSBus) groupFor(topic string) string {
	if topic == domain.TopicRecordSubmitted {
		return b.queueGroup
	}
	return ""
}

// Ping checks NATS connectivity.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection so in-flight submissions finish scoring, then
// closes it.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subscriptions = make(map[string]*natsSubscription)
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
