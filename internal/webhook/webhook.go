// Package webhook processes out-of-band ingestion completion signals:
// it triggers category/diagnostic resolution, emits the completion event,
// and writes the audit trail.
package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/mecaparts/knowledge-gateway/internal/completion"
	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
)

// Payload is the inbound completion webhook body.
type Payload struct {
	JobID        string   `json:"job_id"`
	Source       string   `json:"source"`
	Status       string   `json:"status"`
	FilesCreated []string `json:"files_created,omitempty"`
}

// Validate rejects malformed payloads synchronously with a specific reason.
func (p *Payload) Validate() error {
	if p.JobID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "job_id is required")
	}
	if p.Source != "pdf" && p.Source != "web" {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "source must be pdf or web, got %q", p.Source)
	}
	if p.Status != "done" && p.Status != "failed" {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "status must be done or failed, got %q", p.Status)
	}
	return nil
}

// Handler turns validated webhook payloads into completion events and audit
// records.
type Handler struct {
	completion *completion.Resolver
	audit      AuditStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHandler wires the webhook handler. metrics may be nil.
func NewHandler(comp *completion.Resolver, audit AuditStore, m *metrics.Metrics) *Handler {
	return &Handler{
		completion: comp,
		audit:      audit,
		metrics:    m,
		logger:     slog.Default().With("component", "webhook-handler"),
	}
}

// Handle processes one completion webhook. A failed job writes an audit
// record and emits nothing. A done job resolves the affected gammes and
// diagnostics, emits the completion event, and audits the result with its
// processing latency. The returned event is nil for failed jobs.
func (h *Handler) Handle(ctx context.Context, payload *Payload) (*completion.Event, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	if h.metrics != nil {
		h.metrics.WebhooksTotal.WithLabelValues(payload.Status).Inc()
	}

	if payload.Status == "failed" {
		h.logger.Warn("ingestion reported failed", "job_id", payload.JobID, "source", payload.Source)
		h.appendAudit(ctx, &AuditRecord{
			JobID:        payload.JobID,
			Source:       payload.Source,
			Status:       payload.Status,
			FilesCreated: payload.FilesCreated,
			EventEmitted: false,
			LatencyMs:    time.Since(start).Milliseconds(),
		})
		return nil, nil
	}

	event, err := h.completion.Resolve(ctx, payload.JobID, payload.Source, payload.FilesCreated, nil)
	record := &AuditRecord{
		JobID:        payload.JobID,
		Source:       payload.Source,
		Status:       payload.Status,
		FilesCreated: payload.FilesCreated,
		EventEmitted: err == nil,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if event != nil {
		record.Gammes = event.AffectedGammes
		record.Diagnostics = event.AffectedDiagnostics
	}
	if err != nil {
		record.Error = err.Error()
		h.logger.Error("completion event not emitted", "job_id", payload.JobID, "error", err)
	}
	h.appendAudit(ctx, record)
	return event, nil
}

// appendAudit writes the trail entry best-effort: failures are logged and
// swallowed so they can never affect the response or block event emission.
func (h *Handler) appendAudit(ctx context.Context, rec *AuditRecord) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Append(ctx, rec); err != nil {
		h.logger.Error("audit write failed", "job_id", rec.JobID, "error", err)
	}
}
