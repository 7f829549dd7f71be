// Package api exposes the scoring pipeline over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/cardiorisk/internal/cache"
	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/metrics"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/repository"
)

// maxJSONBytes bounds a single-record request body.
const maxJSONBytes = 64 << 10

// Deps holds the collaborators of the HTTP handlers. Only Pipeline is
// required; nil Repo, Cache or Bus disable the features built on them.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Version  string

	// Submissions queues POST /predict/async records. Set it only when a
	// worker consumes domain.TopicRecordSubmitted; nil answers 503.
	Submissions domain.EventBus

	// MaxUploadBytes bounds a table upload. Defaults to the server limit.
	MaxUploadBytes int64

	// PredictionTTL is how long single-record results stay cached.
	PredictionTTL time.Duration
}

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline       *pipeline.Pipeline
	repo           domain.Repository
	cache          domain.Cache
	bus            domain.EventBus
	submissions    domain.EventBus
	recorder       *pipeline.Recorder
	version        string
	maxUploadBytes int64
	predictionTTL  time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = domain.DefaultConfig().Server.MaxUploadBytes
	}
	if deps.PredictionTTL <= 0 {
		deps.PredictionTTL = 5 * time.Minute
	}
	return &Handler{
		pipeline:       deps.Pipeline,
		repo:           deps.Repo,
		cache:          deps.Cache,
		bus:            deps.Bus,
		submissions:    deps.Submissions,
		recorder:       pipeline.NewRecorder(deps.Repo, deps.Bus),
		version:        deps.Version,
		maxUploadBytes: deps.MaxUploadBytes,
		predictionTTL:  deps.PredictionTTL,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	domain.PredictionResult
	PredictionID string `json:"predictionId"`
	ModelVersion string `json:"modelVersion"`
}

// SubmitResponse is the response for POST /predict/async.
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.pipeline.Ready() {
		writeError(w, domain.ErrArtifactUnavailable)
		return
	}

	rec, err := h.readRecord(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	key := h.cacheKey(rec)
	result := h.cachedPrediction(r, key)
	if result == nil {
		result, _, err = h.pipeline.Predict(ctx, rec)
		if err != nil {
			writeError(w, err)
			return
		}
		if h.cache != nil {
			if err := h.cache.SetPrediction(ctx, key, result, h.predictionTTL); err != nil {
				slog.Warn("failed to cache prediction", "error", err)
			}
		}
	}

	p := &domain.Prediction{
		ID:           uuid.New().String(),
		Source:       domain.SourceAPI,
		ModelVersion: h.pipeline.ModelVersion(),
		Record:       rec,
		Result:       *result,
		CreatedAt:    time.Now().UTC(),
	}
	h.recorder.Record(ctx, p, "")
	metrics.PredictionsTotal.WithLabelValues(domain.SourceAPI, string(result.RiskLevel)).Inc()

	slog.Debug("prediction served",
		"prediction_id", p.ID,
		"risk_level", result.RiskLevel,
		"trace_id", GetTraceID(ctx),
	)

	writeJSON(w, http.StatusOK, PredictResponse{
		PredictionResult: *result,
		PredictionID:     p.ID,
		ModelVersion:     p.ModelVersion,
	})
}

// Submit handles POST /predict/async: the record is validated and handed to
// the scoring worker over the event bus.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.submissions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "async scoring not available",
		})
		return
	}

	rec, err := h.readRecord(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	sub := domain.RecordSubmission{
		SubmissionID: uuid.New().String(),
		Record:       rec,
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.submissions.Publish(r.Context(), domain.TopicRecordSubmitted, payload); err != nil {
		slog.Error("failed to publish submission",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue record",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		SubmissionID: sub.SubmissionID,
		Status:       "queued",
	})
}

// readRecord reads, schema-checks and parses a single-record JSON body.
func (h *Handler) readRecord(w http.ResponseWriter, r *http.Request) (domain.RawRecord, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		return domain.RawRecord{}, &domain.ValidationError{Message: "request body too large or unreadable"}
	}
	if err := validateRecordBody(body); err != nil {
		return domain.RawRecord{}, err
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return domain.RawRecord{}, &domain.ValidationError{Message: "invalid JSON request body"}
	}
	return domain.ParseRecord(fields, domain.ParseOptions{})
}

func (h *Handler) cacheKey(rec domain.RawRecord) string {
	if h.cache == nil {
		return ""
	}
	return cache.PredictionKey(rec, h.pipeline.Fingerprint())
}

func (h *Handler) cachedPrediction(r *http.Request, key string) *domain.PredictionResult {
	if h.cache == nil {
		return nil
	}
	result, err := h.cache.GetPrediction(r.Context(), key)
	if err != nil {
		slog.Warn("prediction cache lookup failed", "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil
	}
	if result == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return result
}

// GetPrediction retrieves a stored prediction by ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	p, err := h.repo.GetPrediction(r.Context(), id)
	if err != nil {
		writeLookupError(w, "prediction", id, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// BatchResponse is the response for GET /batches/{id}.
type BatchResponse struct {
	*domain.Batch
	Predictions []*domain.Prediction `json:"predictions"`
}

// GetBatch retrieves a stored upload summary with its scored rows.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	b, err := h.repo.GetBatch(ctx, id)
	if err != nil {
		writeLookupError(w, "batch", id, err)
		return
	}
	predictions, err := h.repo.ListPredictionsByBatch(ctx, id)
	if err != nil {
		slog.Error("failed to list batch predictions", "batch_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load batch predictions",
		})
		return
	}
	if predictions == nil {
		predictions = []*domain.Prediction{}
	}

	writeJSON(w, http.StatusOK, BatchResponse{Batch: b, Predictions: predictions})
}

func writeLookupError(w http.ResponseWriter, kind, id string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": kind + " not found",
		})
		return
	}
	slog.Error("failed to get "+kind, "id", id, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "failed to get " + kind,
	})
}

// ModelResponse describes the loaded model.
type ModelResponse struct {
	Loaded          bool               `json:"loaded"`
	ModelVersion    string             `json:"modelVersion,omitempty"`
	EncodingVersion string             `json:"encodingVersion,omitempty"`
	Features        []string           `json:"features,omitempty"`
	Encoding        any                `json:"encoding,omitempty"`
	Rules           []*domain.RiskRule `json:"rules"`
	Threshold       float64            `json:"highRiskThreshold"`
}

// Model handles GET /model.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	resp := ModelResponse{
		Loaded:    h.pipeline.Ready(),
		Rules:     h.pipeline.Rules().Rules(),
		Threshold: h.pipeline.Assembler().HighRiskThreshold,
	}
	if t := h.pipeline.Transformer(); t != nil {
		resp.EncodingVersion = t.Encoder().Version()
		resp.Encoding = t.Encoder().Table()
		resp.Features = t.Schema().Names()
	}
	if resp.Loaded {
		resp.ModelVersion = h.pipeline.ModelVersion()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"version":     h.version,
		"modelLoaded": h.pipeline.Ready(),
	})
}

// Ready reports whether the model is loaded and the server can score.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "Model not loaded.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Index describes the service.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "cardiorisk",
		"version": h.version,
		"endpoints": []string{
			"POST /predict",
			"POST /predict/async",
			"POST /upload",
			"GET /predictions/{id}",
			"GET /batches/{id}",
			"GET /model",
			"GET /health",
			"GET /ready",
			"GET /metrics",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps pipeline errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrArtifactUnavailable):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Model not loaded.",
		})
	case domain.IsInputError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
