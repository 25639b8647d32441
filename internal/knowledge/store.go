package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mecaparts/knowledge-gateway/pkg/postgres"
)

// Store is the persistence surface the ingestion pipeline and cleanup
// operations need from the document corpus.
type Store interface {
	// ActiveCountByDomain counts active documents in a topical domain.
	ActiveCountByDomain(ctx context.Context, domain string) (int, error)
	// FindActiveByFingerprint returns the active document carrying the
	// fingerprint, or nil when none does.
	FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Document, error)
	// Upsert writes or updates a document keyed by its parent source and
	// returns the stored row.
	Upsert(ctx context.Context, doc *Document) (*Document, error)
	// ListActive returns every active document ordered by source.
	ListActive(ctx context.Context) ([]Document, error)
	// Archive moves a document out of the active set, optionally recording
	// which document it duplicates.
	Archive(ctx context.Context, id string, duplicateOf string) error
}

// PostgresStore implements Store on top of the documents table.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates a Store backed by PostgreSQL.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "document-store"),
	}
}

func (s *PostgresStore) ActiveCountByDomain(ctx context.Context, domain string) (int, error) {
	var count int
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE domain = $1 AND status = 'active'`,
		domain,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active documents for domain %s: %w", domain, err)
	}
	return count, nil
}

func (s *PostgresStore) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Document, error) {
	var doc Document
	var quarantineReason, duplicateOf sql.NullString
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, title, content, source, parent_source, fingerprint, domain,
		        category, truth_level, status, retrievable, quarantine_reason,
		        duplicate_of, created_at, updated_at
		 FROM documents WHERE fingerprint = $1 AND status = 'active'
		 ORDER BY source LIMIT 1`, fingerprint,
	).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Source, &doc.ParentSource,
		&doc.Fingerprint, &doc.Domain, &doc.Category, &doc.TruthLevel,
		&doc.Status, &doc.Retrievable, &quarantineReason, &duplicateOf,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by fingerprint: %w", err)
	}
	doc.QuarantineReason = quarantineReason.String
	doc.DuplicateOf = duplicateOf.String
	return &doc, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, doc *Document) (*Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO documents (id, title, content, source, parent_source, fingerprint,
		                        domain, category, truth_level, status, retrievable,
		                        quarantine_reason, duplicate_of, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		 ON CONFLICT (parent_source) DO UPDATE SET
		   title = EXCLUDED.title,
		   content = EXCLUDED.content,
		   source = EXCLUDED.source,
		   fingerprint = EXCLUDED.fingerprint,
		   domain = EXCLUDED.domain,
		   category = EXCLUDED.category,
		   truth_level = EXCLUDED.truth_level,
		   status = EXCLUDED.status,
		   retrievable = EXCLUDED.retrievable,
		   quarantine_reason = EXCLUDED.quarantine_reason,
		   duplicate_of = EXCLUDED.duplicate_of,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		doc.ID, doc.Title, doc.Content, doc.Source, doc.ParentSource,
		doc.Fingerprint, doc.Domain, doc.Category, doc.TruthLevel, doc.Status,
		doc.Retrievable, nullableString(doc.QuarantineReason),
		nullableString(doc.DuplicateOf), now,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting document %s: %w", doc.ParentSource, err)
	}
	doc.UpdatedAt = now
	return doc, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, source, parent_source, fingerprint, domain, category, truth_level
		 FROM documents WHERE status = 'active' ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("listing active documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Source, &d.ParentSource, &d.Fingerprint,
			&d.Domain, &d.Category, &d.TruthLevel); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		d.Status = StatusActive
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Archive(ctx context.Context, id string, duplicateOf string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = 'archived', duplicate_of = $2, updated_at = $3
		 WHERE id = $1`,
		id, nullableString(duplicateOf), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archiving document %s: %w", id, err)
	}
	return nil
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
