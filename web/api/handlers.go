package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/ordering"
	"github.com/hochfrequenz/docai-batch/internal/taskstore"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// BatchResponse is the API response for one batch
type BatchResponse struct {
	taskstore.BatchSummary
	Duration       string               `json:"duration"`
	SuccessRate    float64              `json:"success_rate"`
	FailuresByKind map[string]int       `json:"failures_by_kind,omitempty"`
	Tasks          []TaskResultResponse `json:"tasks"`
}

// TaskResultResponse is the API response for one task result
type TaskResultResponse struct {
	Seq        int     `json:"seq"`
	DocumentID string  `json:"document_id"`
	Status     string  `json:"status"`
	WorkerID   int     `json:"worker_id"`
	Duration   float64 `json:"duration_seconds"`
	PageCount  int     `json:"page_count,omitempty"`
	TableCount int     `json:"table_count,omitempty"`
	ErrorKind  string  `json:"error_kind,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// OrderResponse is the API response for a batch's report order
type OrderResponse struct {
	BatchID   string                     `json:"batch_id"`
	Documents []ordering.OrderedDocument `json:"documents"`
	Unused    []string                   `json:"unused_entries"`
}

func resultToResponse(res domain.TaskResult) TaskResultResponse {
	resp := TaskResultResponse{
		Seq:        res.Seq,
		DocumentID: res.DocumentID,
		Status:     string(res.Status()),
		WorkerID:   res.WorkerID,
		Duration:   res.Duration.Seconds(),
	}
	if res.Extraction != nil {
		resp.PageCount = res.Extraction.PageCount
		resp.TableCount = res.Extraction.TableCount
	}
	if res.Failure != nil {
		resp.ErrorKind = string(res.Failure.Kind)
		resp.Error = res.Failure.Message
	}
	return resp
}

func batchToResponse(r *domain.BatchReport) BatchResponse {
	resp := BatchResponse{
		BatchSummary: taskstore.Summarize(r),
		Duration:     r.WallClock.Round(time.Millisecond).String(),
		SuccessRate:  r.SuccessRate(),
		Tasks:        make([]TaskResultResponse, 0, len(r.PerTask)),
	}
	if byKind := r.FailuresByKind(); len(byKind) > 0 {
		resp.FailuresByKind = make(map[string]int, len(byKind))
		for k, n := range byKind {
			resp.FailuresByKind[string(k)] = n
		}
	}
	for _, res := range r.BySubmission() {
		resp.Tasks = append(resp.Tasks, resultToResponse(res))
	}
	return resp
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) listBatchesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	batches, err := s.store.ListBatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing batches", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	if batches == nil {
		batches = []taskstore.BatchSummary{}
	}
	writeJSON(w, batches)
}

// loadBatch writes the error response itself and returns nil when the batch cannot be served
func (s *Server) loadBatch(w http.ResponseWriter, r *http.Request) *domain.BatchReport {
	id := chi.URLParam(r, "id")
	report, err := s.store.GetBatch(r.Context(), id)
	if errors.Is(err, taskstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return nil
	}
	if err != nil {
		s.logger.Error("loading batch", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return nil
	}
	return report
}

func (s *Server) getBatchHandler(w http.ResponseWriter, r *http.Request) {
	report := s.loadBatch(w, r)
	if report == nil {
		return
	}
	writeJSON(w, batchToResponse(report))
}

func (s *Server) failuresHandler(w http.ResponseWriter, r *http.Request) {
	report := s.loadBatch(w, r)
	if report == nil {
		return
	}
	failures := make([]TaskResultResponse, 0, report.Failed)
	for _, res := range report.BySubmission() {
		if !res.Succeeded() {
			failures = append(failures, resultToResponse(res))
		}
	}
	writeJSON(w, failures)
}

func (s *Server) orderHandler(w http.ResponseWriter, r *http.Request) {
	report := s.loadBatch(w, r)
	if report == nil {
		return
	}
	var ids []string
	for _, res := range report.Successes() {
		ids = append(ids, res.DocumentID)
	}
	docs := ordering.Order(ids, s.ordering)
	unused := ordering.UnusedEntries(docs, s.ordering)
	if unused == nil {
		unused = []string{}
	}
	writeJSON(w, OrderResponse{BatchID: report.ID, Documents: docs, Unused: unused})
}
