// Package worker scores records submitted asynchronously over the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
)

// Worker consumes record submissions and scores them through the pipeline.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	recorder *pipeline.Recorder

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, p *pipeline.Pipeline, recorder *pipeline.Recorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: p,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to record submissions.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRecordSubmitted, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started",
		"topic", domain.TopicRecordSubmitted,
	)
	return nil
}

// handleMessage scores one submitted record.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sub domain.RecordSubmission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse record submission",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = msg.ID
	}

	result, _, err := w.pipeline.Predict(ctx, sub.Record)
	if err != nil {
		w.failed.Add(1)
		level := slog.LevelError
		if domain.IsInputError(err) || errors.Is(err, domain.ErrArtifactUnavailable) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "submission not scored",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
		return err
	}

	p := &domain.Prediction{
		ID:           uuid.New().String(),
		Source:       domain.SourceWorker,
		ModelVersion: w.pipeline.ModelVersion(),
		Record:       sub.Record,
		Result:       *result,
		CreatedAt:    time.Now().UTC(),
	}
	w.recorder.Record(ctx, p, sub.SubmissionID)
	w.processed.Add(1)
	metrics.PredictionsTotal.WithLabelValues(domain.SourceWorker, string(result.RiskLevel)).Inc()

	slog.Info("submission scored",
		"submission_id", sub.SubmissionID,
		"prediction_id", p.ID,
		"risk_level", result.RiskLevel,
		"probability", result.Probability,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
