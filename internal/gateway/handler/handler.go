// Package handler implements the gateway's HTTP endpoints: document
// ingestion, job submission and tracking, completion webhooks, query
// answering, and corpus maintenance.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mecaparts/knowledge-gateway/internal/frontmatter"
	"github.com/mecaparts/knowledge-gateway/internal/ingest"
	"github.com/mecaparts/knowledge-gateway/internal/intent"
	"github.com/mecaparts/knowledge-gateway/internal/jobs"
	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
	"github.com/mecaparts/knowledge-gateway/internal/webhook"
	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
)

// Handler implements the gateway's HTTP endpoints over the domain services.
type Handler struct {
	pipeline     *ingest.Pipeline
	cleanup      *ingest.Cleanup
	intake       *frontmatter.Intake
	intakeSubdir string
	orchestrator *jobs.Orchestrator
	jobStore     jobs.Store
	webhooks     *webhook.Handler
	retrieval    *retrieval.Client
	stats        *intent.Stats
	logger       *slog.Logger
}

// New creates a gateway Handler over the wired services.
func New(
	pipeline *ingest.Pipeline,
	cleanup *ingest.Cleanup,
	intake *frontmatter.Intake,
	intakeSubdir string,
	orchestrator *jobs.Orchestrator,
	jobStore jobs.Store,
	webhooks *webhook.Handler,
	retrievalClient *retrieval.Client,
	stats *intent.Stats,
) *Handler {
	return &Handler{
		pipeline:     pipeline,
		cleanup:      cleanup,
		intake:       intake,
		intakeSubdir: intakeSubdir,
		orchestrator: orchestrator,
		jobStore:     jobStore,
		webhooks:     webhooks,
		retrieval:    retrievalClient,
		stats:        stats,
		logger:       slog.Default().With("component", "gateway-handler"),
	}
}

// ---------- Document ingestion ----------

// IngestDocument runs one document through the admission pipeline and
// persists the decided state. The decision is always returned, including
// for quarantined and archived outcomes.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var doc knowledge.IngestDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if doc.Title == "" || doc.Content == "" || doc.Source == "" {
		h.writeError(w, http.StatusBadRequest, "title, content, and source are required")
		return
	}
	if !doc.TruthLevel.Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid truth_level %q", doc.TruthLevel))
		return
	}

	decision, stored, err := h.pipeline.Ingest(r.Context(), &doc)
	if err != nil {
		h.logger.Error("ingestion failed", "source", doc.Source, "error", err)
		h.writeAppError(w, err, "ingestion failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"decision": decision,
		"document": stored,
	})
}

// ---------- Job submission and tracking ----------

// SubmitPDF starts a background PDF ingestion job and returns it in its
// initial running state.
func (h *Handler) SubmitPDF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		h.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	job, err := h.orchestrator.StartPDF(r.Context(), req.Path)
	if err != nil {
		h.writeAppError(w, err, "failed to start pdf job")
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

// SubmitWeb starts a background web extraction job. At most one web job
// runs at a time; concurrent submissions get 409.
func (h *Handler) SubmitWeb(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		TruthLevel string `json:"truth_level,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.TruthLevel != "" && !knowledge.TruthLevel(req.TruthLevel).Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid truth_level %q", req.TruthLevel))
		return
	}

	job, err := h.orchestrator.StartWeb(r.Context(), req.URL, req.TruthLevel)
	if err != nil {
		h.writeAppError(w, err, "failed to start web job")
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

// GetJob returns the committed snapshot of one job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	job, err := h.orchestrator.Get(r.Context(), id)
	if err != nil {
		h.writeAppError(w, err, "failed to load job")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListJobs returns the snapshots of all live jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobStore.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// ---------- Webhooks ----------

// IngestionWebhook handles out-of-band completion notifications from the
// external extraction worker.
func (h *Handler) IngestionWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	event, err := h.webhooks.Handle(r.Context(), &payload)
	if err != nil {
		h.writeAppError(w, err, "webhook processing failed")
		return
	}
	resp := map[string]any{"status": "processed", "event_emitted": event != nil}
	if event != nil {
		resp["event"] = event
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ---------- Query ----------

// Query classifies the question, derives retrieval filters from the intent,
// and returns the grounded answer with its sources.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	classification := intent.Classify(req.Message)
	h.stats.Record(classification)
	filters := intent.BuildFilters(classification)

	answer, err := h.retrieval.Answer(r.Context(), req.Message, filters)
	if err != nil {
		h.writeAppError(w, err, "retrieval unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"intent":  classification,
		"filters": filters,
		"answer":  answer.Answer,
		"sources": answer.Sources,
	})
}

// QueryStream answers a query as a server-sent event stream: a metadata
// frame, the answer in word chunks, the sources, then a done frame. A
// retrieval failure becomes a single terminal error frame.
func (h *Handler) QueryStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("q")
	if message == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	classification := intent.Classify(message)
	h.stats.Record(classification)
	filters := intent.BuildFilters(classification)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var frames <-chan intent.Frame
	answer, err := h.retrieval.Answer(r.Context(), message, filters)
	if err != nil {
		frames = intent.ReplayError(err.Error())
	} else {
		frames = intent.Replay(r.Context(), classification, answer)
	}
	for frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("failed to encode stream frame", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// IntentStats returns the in-memory per-intent aggregates.
func (h *Handler) IntentStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"intents": h.stats.Snapshot(),
	})
}

// ---------- Maintenance ----------

// DedupCleanup runs the batch dedup sweep. mode=dry (default) reports,
// mode=commit archives.
func (h *Handler) DedupCleanup(w http.ResponseWriter, r *http.Request) {
	mode := ingest.CleanupMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = ingest.CleanupDry
	}
	report, err := h.cleanup.Run(r.Context(), mode)
	if err != nil {
		if mode != ingest.CleanupDry && mode != ingest.CleanupCommit {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("dedup cleanup failed", "mode", mode, "error", err)
		h.writeError(w, http.StatusInternalServerError, "dedup cleanup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// IntakeScan validates the intake zone on demand and quarantines what fails.
func (h *Handler) IntakeScan(w http.ResponseWriter, r *http.Request) {
	report, err := h.intake.ValidateZone(h.intakeSubdir, time.Time{})
	if err != nil {
		h.logger.Error("intake scan failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "intake scan failed")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// ---------- Helpers ----------

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps a domain error to its HTTP status, preferring the
// error's own message for client errors.
func (h *Handler) writeAppError(w http.ResponseWriter, err error, fallback string) {
	status := apperrors.HTTPStatusCode(err)
	message := fallback
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	h.writeError(w, status, message)
}
