package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maltedev/storefront-importer/internal/database"
	"github.com/maltedev/storefront-importer/internal/persistence"
	"github.com/maltedev/storefront-importer/internal/pipeline"
	"github.com/maltedev/storefront-importer/internal/queue"
)

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type Processor interface {
	Process(ctx context.Context, url string) (pipeline.Result, error)
}

type ProductLookup interface {
	LookupProduct(ctx context.Context, sourceKey, canonicalURL string) (*database.ProductSummary, error)
}

type TaskQueue interface {
	Enqueue(urls []string, priority int) ([]*queue.Task, error)
	Status(id uuid.UUID) (queue.Status, bool)
}

// Backlog reports outbox depth; nil when the stream backend is used.
type Backlog interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	runner   Processor
	products ProductLookup
	tasks    TaskQueue
	backlog  Backlog
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandlers(runner Processor, products ProductLookup, tasks TaskQueue, backlog Backlog, logger *slog.Logger) *Handlers {
	return &Handlers{
		runner:   runner,
		products: products,
		tasks:    tasks,
		backlog:  backlog,
		validate: validator.New(),
		logger:   logger.With("component", "api"),
	}
}

// ImportRequest asks for one storefront item to be imported
type ImportRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type ImportResponse struct {
	URL       string     `json:"url"`
	Outcome   string     `json:"outcome"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Stage     string     `json:"stage,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Degraded  []string   `json:"degraded,omitempty"`
	Variants  int        `json:"variants"`
	Seconds   float64    `json:"seconds"`
}

// ImportItem runs the pipeline for one URL and reports its outcome
func (h *Handlers) ImportItem(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "url must be an absolute URL")
		return
	}

	res, err := h.runner.Process(r.Context(), req.URL)
	if err != nil {
		h.logger.Warn("import interrupted", "url", req.URL, "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "import interrupted")
		return
	}

	resp := ImportResponse{
		URL:      res.URL,
		Outcome:  string(res.Outcome),
		Stage:    string(res.Stage),
		Reason:   res.Reason(),
		Degraded: res.Degraded,
		Variants: res.Variants,
		Seconds:  res.Duration.Seconds(),
	}
	if res.ProductID != uuid.Nil {
		id := res.ProductID
		resp.ProductID = &id
	}

	status := http.StatusOK
	switch res.Outcome {
	case pipeline.OutcomePersisted:
		status = http.StatusCreated
	case pipeline.OutcomeSkipped:
		status = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, status, resp)
}

// BatchRequest queues several items for the background worker
type BatchRequest struct {
	URLs     []string `json:"urls" validate:"required,min=1,max=100,dive,required,url"`
	Priority int      `json:"priority"`
}

type BatchTask struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
}

type BatchResponse struct {
	Tasks []BatchTask `json:"tasks"`
}

// EnqueueBatch queues items and returns immediately with their task ids
func (h *Handlers) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range req.URLs {
		req.URLs[i] = strings.TrimSpace(req.URLs[i])
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "urls must hold 1 to 100 absolute URLs")
		return
	}

	tasks, err := h.tasks.Enqueue(req.URLs, req.Priority)
	if err != nil {
		h.logger.Error("failed to enqueue batch", "queued", len(tasks), "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "import queue is not accepting tasks")
		return
	}

	resp := BatchResponse{Tasks: make([]BatchTask, len(tasks))}
	for i, t := range tasks {
		resp.Tasks[i] = BatchTask{ID: t.ID, URL: t.URL}
	}
	h.respondJSON(w, http.StatusAccepted, resp)
}

// GetTask reports the progress of a queued item
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "task ID must be a UUID")
		return
	}

	status, ok := h.tasks.Status(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "task not found")
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// LookupItem returns the stored product for a source URL
func (h *Handlers) LookupItem(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	key := persistence.CanonicalKey(raw)
	product, err := h.products.LookupProduct(r.Context(), key, persistence.CanonicalURL(raw))
	if err != nil {
		h.logger.Error("failed to look up product", "source_key", key, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to look up product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("no product for %s", key))
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// Health reports outbox backlog when the outbox backend is active
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.backlog != nil {
		pending, deadLetter, err := h.backlog.Backlog(r.Context())
		switch {
		case err != nil:
			h.logger.Error("failed to read outbox backlog", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		default:
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterFailThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
