package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mecaparts/knowledge-gateway/pkg/postgres"
)

// AuditRecord is one append-only trail entry per received webhook. Records
// are never mutated.
type AuditRecord struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	FilesCreated []string  `json:"files_created"`
	Gammes       []string  `json:"gammes"`
	Diagnostics  []string  `json:"diagnostics"`
	EventEmitted bool      `json:"event_emitted"`
	Error        string    `json:"error,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditStore appends webhook audit records.
type AuditStore interface {
	Append(ctx context.Context, rec *AuditRecord) error
}

// PostgresAuditStore implements AuditStore on the webhook_audit table.
type PostgresAuditStore struct {
	db *postgres.Client
}

// NewPostgresAuditStore creates an AuditStore backed by PostgreSQL.
func NewPostgresAuditStore(db *postgres.Client) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

func (s *PostgresAuditStore) Append(ctx context.Context, rec *AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO webhook_audit (id, job_id, source, status, files_created,
		                            gammes, diagnostics, event_emitted, error,
		                            latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.JobID, rec.Source, rec.Status, pq.Array(rec.FilesCreated),
		pq.Array(rec.Gammes), pq.Array(rec.Diagnostics), rec.EventEmitted,
		rec.Error, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit record for job %s: %w", rec.JobID, err)
	}
	return nil
}
