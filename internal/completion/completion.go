// Package completion turns a finished ingestion run into a structured
// completion event: it resolves the affected gammes and diagnostics and
// publishes the event for downstream content-refresh consumers.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mecaparts/knowledge-gateway/internal/frontmatter"
	"github.com/mecaparts/knowledge-gateway/internal/gammes"
	"github.com/mecaparts/knowledge-gateway/pkg/kafka"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
)

// QuarantinedFile is the per-file slice of a validation summary.
type QuarantinedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ValidationSummary reports the intake validation that ran alongside a
// completion, when one did.
type ValidationSummary struct {
	TotalFiles       int               `json:"totalFiles"`
	ValidFiles       int               `json:"validFiles"`
	QuarantinedFiles int               `json:"quarantinedFiles"`
	Quarantined      []QuarantinedFile `json:"quarantined"`
}

// Event is the completion event consumed by downstream collaborators.
type Event struct {
	JobID               string              `json:"jobId"`
	Source              string              `json:"source"`
	Status              string              `json:"status"`
	CompletedAt         int64               `json:"completedAt"`
	AffectedGammes      []string            `json:"affectedGammes"`
	AffectedGammesMap   map[string][]string `json:"affectedGammesMap"`
	AffectedDiagnostics []string            `json:"affectedDiagnostics,omitempty"`
	ValidationSummary   *ValidationSummary  `json:"validationSummary,omitempty"`
}

// Resolver builds and publishes completion events.
type Resolver struct {
	root         string
	fallbackScan string
	recentWindow time.Duration
	gammes       *gammes.Resolver
	producer     *kafka.Producer
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewResolver creates a Resolver. fallbackScan is the knowledge-root
// subdirectory scanned by modification time when a completion lists no
// files. producer and metrics may be nil (events are then only returned,
// not published).
func NewResolver(root, fallbackScan string, recentWindow time.Duration, g *gammes.Resolver, producer *kafka.Producer, m *metrics.Metrics) *Resolver {
	if recentWindow <= 0 {
		recentWindow = 30 * time.Minute
	}
	return &Resolver{
		root:         root,
		fallbackScan: fallbackScan,
		recentWindow: recentWindow,
		gammes:       g,
		producer:     producer,
		metrics:      m,
		logger:       slog.Default().With("component", "completion-resolver"),
	}
}

// Resolve maps the files a run produced back to gamme and diagnostic
// aliases, builds the completion event, and publishes it. Relative file
// paths are joined with the knowledge root. With no file list, a
// modification-time scan of the fallback directory stands in.
func (r *Resolver) Resolve(ctx context.Context, jobID, source string, files []string, validation *frontmatter.IntakeReport) (*Event, error) {
	cutoff := time.Now().Add(-r.recentWindow)

	var resolution gammes.Resolution
	var diagnostics []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(files) > 0 {
			resolution = r.gammes.ResolveFiles(gctx, r.absolute(files))
		} else {
			resolution = r.gammes.ResolveRecent(gctx, r.fallbackScan, cutoff)
		}
		return nil
	})
	g.Go(func() error {
		diagnostics = r.gammes.ResolveDiagnostics(cutoff)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	event := &Event{
		JobID:             jobID,
		Source:            source,
		Status:            "done",
		CompletedAt:       time.Now().Unix(),
		AffectedGammes:    resolution.Aliases(),
		AffectedGammesMap: resolution,
	}
	if len(diagnostics) > 0 {
		event.AffectedDiagnostics = diagnostics
	}
	if validation != nil {
		event.ValidationSummary = summarize(validation)
	}

	if err := r.Publish(ctx, event); err != nil {
		return event, err
	}
	return event, nil
}

// Publish emits the event to Kafka when a producer is configured.
func (r *Resolver) Publish(ctx context.Context, event *Event) error {
	if r.producer == nil {
		return nil
	}
	if err := r.producer.Publish(ctx, kafka.Event{Key: event.JobID, Value: event}); err != nil {
		return fmt.Errorf("publishing completion event for job %s: %w", event.JobID, err)
	}
	if r.metrics != nil {
		r.metrics.CompletionEventsTotal.Inc()
	}
	r.logger.Info("completion event published",
		"job_id", event.JobID,
		"source", event.Source,
		"gammes", len(event.AffectedGammes),
		"diagnostics", len(event.AffectedDiagnostics),
	)
	return nil
}

func (r *Resolver) absolute(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(r.root, f)
		}
		out = append(out, f)
	}
	return out
}

func summarize(report *frontmatter.IntakeReport) *ValidationSummary {
	summary := &ValidationSummary{
		TotalFiles:       report.TotalFiles,
		ValidFiles:       len(report.ValidFiles),
		QuarantinedFiles: len(report.Quarantined),
		Quarantined:      []QuarantinedFile{},
	}
	for _, q := range report.Quarantined {
		summary.Quarantined = append(summary.Quarantined, QuarantinedFile{
			Filename: q.Filename,
			Reason:   q.Reason,
		})
	}
	return summary
}
