package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
)

// UploadSummary counts the rows of one upload.
type UploadSummary struct {
	BatchID string `json:"batchId"`
	Total   int    `json:"total"`
	Scored  int    `json:"scored"`
	Failed  int    `json:"failed"`
}

// UploadResponse is the response for POST /upload.
type UploadResponse struct {
	Results []pipeline.Row `json:"results"`
	Summary UploadSummary  `json:"summary"`
}

// Upload handles POST /upload: a multipart CSV table scored row by row.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.pipeline.Ready() {
		writeError(w, domain.ErrArtifactUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUploadBytes),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "No file uploaded",
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// A file part sent without a filename is parsed as a plain value.
		msg := "No file uploaded"
		if _, ok := r.MultipartForm.Value["file"]; ok {
			msg = "No file selected"
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file selected"})
		return
	}

	table, err := pipeline.ReadTable(file)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.pipeline.ScoreTable(ctx, table, domain.SourceUpload, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	h.recorder.RecordBatch(ctx, res.Batch, res.Predictions)

	slog.Info("batch scored",
		"batch_id", res.Batch.ID,
		"filename", res.Batch.Filename,
		"total", res.Batch.Total,
		"scored", res.Batch.Scored,
		"failed", res.Batch.Failed,
		"trace_id", GetTraceID(ctx),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Results: res.Rows,
		Summary: UploadSummary{
			BatchID: res.Batch.ID,
			Total:   res.Batch.Total,
			Scored:  res.Batch.Scored,
			Failed:  res.Batch.Failed,
		},
	})
}
