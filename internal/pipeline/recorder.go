package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Recorder persists predictions and publishes prediction events. Both sinks
// are optional and their failures are logged, never returned: a prediction
// is not failed by history or messaging.
type Recorder struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewRecorder creates a recorder. Either argument may be nil.
func NewRecorder(repo domain.Repository, bus domain.EventBus) *Recorder {
	return &Recorder{repo: repo, bus: bus}
}

// Record stores p and publishes its completion event, plus an alert when the
// result is high risk.
func (r *Recorder) Record(ctx context.Context, p *domain.Prediction, submissionID string) {
	if r == nil || p == nil {
		return
	}

	if r.repo != nil {
		if err := r.repo.SavePrediction(ctx, p); err != nil {
			slog.Error("failed to save prediction",
				"prediction_id", p.ID,
				"error", err,
			)
		}
	}

	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.PredictionEvent{
		PredictionID: p.ID,
		SubmissionID: submissionID,
		BatchID:      p.BatchID,
		ModelVersion: p.ModelVersion,
		Result:       p.Result,
	})
	if err != nil {
		slog.Error("failed to encode prediction event", "prediction_id", p.ID, "error", err)
		return
	}

	r.publish(ctx, domain.TopicPredictionCompleted, payload, p.ID)
	if ShouldAlert(&p.Result) {
		r.publish(ctx, domain.TopicHighRiskAlert, payload, p.ID)
	}
}

// RecordBatch stores a batch summary followed by its scored rows.
func (r *Recorder) RecordBatch(ctx context.Context, b *domain.Batch, predictions []*domain.Prediction) {
	if r == nil || b == nil {
		return
	}

	if r.repo != nil {
		if err := r.repo.SaveBatch(ctx, b); err != nil {
			slog.Error("failed to save batch",
				"batch_id", b.ID,
				"error", err,
			)
		}
	}
	for _, p := range predictions {
		r.Record(ctx, p, "")
	}
}

func (r *Recorder) publish(ctx context.Context, topic string, payload []byte, predictionID string) {
	err := r.bus.Publish(ctx, topic, payload)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoSubscribers):
		slog.Debug("event has no subscribers", "topic", topic, "prediction_id", predictionID)
	default:
		slog.Error("failed to publish event",
			"topic", topic,
			"prediction_id", predictionID,
			"error", err,
		)
	}
}
