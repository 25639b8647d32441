package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mecaparts/knowledge-gateway/internal/completion"
	"github.com/mecaparts/knowledge-gateway/internal/frontmatter"
	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
	"github.com/mecaparts/knowledge-gateway/pkg/resilience"
)

// knowledgeZones are the output categories a web extraction can produce,
// checked in order against the extraction output directory.
var knowledgeZones = []string{"gammes", "guides", "diagnostics", "faq", "web"}

// Reindexer triggers a reindex of knowledge files on the search engine.
type Reindexer interface {
	Reindex(ctx context.Context, paths []string) error
}

// Config carries the orchestrator's filesystem layout and poll budget.
type Config struct {
	KnowledgeRoot string
	ScratchDir    string
	IntakeSubdir  string
	PollInterval  time.Duration
	PollAttempts  int
}

// Orchestrator drives PDF and web ingestion jobs end-to-end: stage, extract,
// validate, reindex, cleanup, and completion resolution.
type Orchestrator struct {
	cfg        Config
	store      Store
	worker     Worker
	intake     *frontmatter.Intake
	completion *completion.Resolver
	reindexer  Reindexer
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewOrchestrator wires the orchestrator. metrics may be nil.
func NewOrchestrator(cfg Config, store Store, worker Worker, intake *frontmatter.Intake, comp *completion.Resolver, reindexer Reindexer, m *metrics.Metrics) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 20
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		worker:     worker,
		intake:     intake,
		completion: comp,
		reindexer:  reindexer,
		metrics:    m,
		logger:     slog.Default().With("component", "job-orchestrator"),
	}
}

// StartPDF stages the source file into a per-run directory, records the job
// as running, and drives the external worker in the background.
func (o *Orchestrator) StartPDF(ctx context.Context, path string) (*Job, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "pdf not found: %s", path)
	}
	job := newJob(KindPDF)
	job.SourcePath = path

	runDir := filepath.Join(o.cfg.ScratchDir, "run-"+job.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run dir: %w", err)
	}
	staged := filepath.Join(runDir, filepath.Base(path))
	if err := copyFile(path, staged); err != nil {
		return nil, fmt.Errorf("staging %s: %w", path, err)
	}
	job.Logf("staged %s", staged)
	if err := o.store.Put(ctx, job); err != nil {
		return nil, err
	}

	// The pipeline run owns the job from here; callers get a detached
	// snapshot and observe progress through the store.
	snapshot := job.Snapshot()
	go o.runPDF(context.WithoutCancel(ctx), job, staged)
	return snapshot, nil
}

func (o *Orchestrator) runPDF(ctx context.Context, job *Job, staged string) {
	start := time.Now()
	// The staged copy is only needed until the worker reports a terminal
	// state; the run dir goes with it.
	defer os.RemoveAll(filepath.Dir(staged))
	workerJobID, err := o.worker.SubmitPDF(ctx, staged)
	if err != nil {
		o.finish(ctx, job, fmt.Sprintf("submitting pdf: %v", err))
		return
	}
	job.Logf("submitted to extraction worker as %s", workerJobID)
	o.persist(ctx, job)

	var workerFailed bool
	var workerCode *int
	var workerLog []string
	pollErr := resilience.Poll(ctx, "pdf-job-"+job.ID, resilience.PollConfig{
		Interval:    o.cfg.PollInterval,
		MaxAttempts: o.cfg.PollAttempts,
	}, func(attempt int) (bool, error) {
		status, err := o.worker.JobStatus(ctx, workerJobID)
		if err != nil {
			// The breaker or a transient failure; keep polling within budget.
			job.Logf("poll %d: status unavailable: %v", attempt, err)
			o.persist(ctx, job)
			return false, nil
		}
		if !status.Terminal() {
			return false, nil
		}
		workerFailed = status.Status == "failed"
		workerCode = status.ReturnCode
		workerLog = status.LogTail
		return true, nil
	})
	if pollErr != nil {
		o.finish(ctx, job, fmt.Sprintf("polling worker job %s: %v", workerJobID, pollErr))
		return
	}
	for _, line := range workerLog {
		job.Logf("worker: %s", line)
	}
	if workerFailed {
		o.finish(ctx, job, "extraction worker reported failure")
		return
	}

	report, err := o.intake.ValidateZone(o.cfg.IntakeSubdir, time.Time{})
	if err != nil {
		o.finish(ctx, job, fmt.Sprintf("validating intake zone: %v", err))
		return
	}
	job.Logf("intake validated: %d valid, %d quarantined", len(report.ValidFiles), len(report.Quarantined))

	if _, err := o.completion.Resolve(ctx, job.ID, string(KindPDF), report.ValidFiles, report); err != nil {
		job.Logf("completion resolution: %v", err)
	}
	code := 0
	if workerCode != nil {
		code = *workerCode
	}
	job.MarkDone(code)
	o.persist(ctx, job)
	o.observe(job, start)
}

// StartWeb records a running web job and drives the local extraction
// pipeline in the background. At most one web job may run at a time; a
// second submission gets a conflict error.
func (o *Orchestrator) StartWeb(ctx context.Context, rawURL, truthLevel string) (*Job, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "invalid url: %s", rawURL)
	}
	job := newJob(KindWeb)
	job.SourceURL = rawURL
	job.TruthLevel = truthLevel

	ok, err := o.store.AcquireWebSlot(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrJobConflict, 409, "a web ingestion job is already running")
	}
	if err := o.store.Put(ctx, job); err != nil {
		releaseErr := o.store.ReleaseWebSlot(ctx, job.ID)
		if releaseErr != nil {
			o.logger.Error("failed to release web slot after store error", "job_id", job.ID, "error", releaseErr)
		}
		return nil, err
	}

	snapshot := job.Snapshot()
	go o.runWeb(context.WithoutCancel(ctx), job)
	return snapshot, nil
}

func (o *Orchestrator) runWeb(ctx context.Context, job *Job) {
	start := time.Now()
	defer func() {
		if err := o.store.ReleaseWebSlot(ctx, job.ID); err != nil {
			o.logger.Error("failed to release web slot", "job_id", job.ID, "error", err)
		}
	}()

	runDir := filepath.Join(o.cfg.ScratchDir, "run-"+job.ID)
	defer os.RemoveAll(runDir)

	result, err := o.worker.ExtractURL(ctx, job.SourceURL, job.TruthLevel, runDir)
	if result != nil {
		for _, line := range result.LogLines {
			job.Logf("extractor: %s", line)
		}
	}
	if err != nil {
		o.finish(ctx, job, fmt.Sprintf("extracting %s: %v", job.SourceURL, err))
		return
	}

	zone, files, err := detectOutputZone(result.OutputDir)
	if err != nil {
		o.finish(ctx, job, err.Error())
		return
	}
	job.Logf("extraction produced %d files in zone %s", len(files), zone)

	destDir := filepath.Join(o.cfg.KnowledgeRoot, zone)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		o.finish(ctx, job, fmt.Sprintf("creating %s: %v", destDir, err))
		return
	}
	for _, f := range files {
		if err := copyFile(f, filepath.Join(destDir, filepath.Base(f))); err != nil {
			o.finish(ctx, job, fmt.Sprintf("copying %s: %v", f, err))
			return
		}
	}

	// Only the files this run copied are younger than its start time.
	report, err := o.intake.ValidateZone(zone, start)
	if err != nil {
		o.finish(ctx, job, fmt.Sprintf("validating copied files: %v", err))
		return
	}
	job.Logf("validated: %d valid, %d quarantined", len(report.ValidFiles), len(report.Quarantined))

	if len(report.ValidFiles) > 0 {
		if err := o.reindexer.Reindex(ctx, report.ValidFiles); err != nil {
			o.finish(ctx, job, fmt.Sprintf("reindexing: %v", err))
			return
		}
		job.Logf("reindexed %d files", len(report.ValidFiles))
	}

	job.MarkDone(0)
	o.persist(ctx, job)
	if _, err := o.completion.Resolve(ctx, job.ID, string(KindWeb), report.ValidFiles, report); err != nil {
		job.Logf("completion resolution: %v", err)
		o.persist(ctx, job)
	}
	o.observe(job, start)
}

// Get returns the committed snapshot of a job.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Job, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) finish(ctx context.Context, job *Job, reason string) {
	job.MarkFailed(reason)
	o.persist(ctx, job)
	o.logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "reason", reason)
	if o.metrics != nil {
		o.metrics.JobsTotal.WithLabelValues(string(job.Kind), string(StatusFailed)).Inc()
	}
}

func (o *Orchestrator) persist(ctx context.Context, job *Job) {
	if err := o.store.Put(ctx, job); err != nil {
		o.logger.Error("failed to persist job", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) observe(job *Job, start time.Time) {
	o.logger.Info("job finished", "job_id", job.ID, "kind", job.Kind, "status", job.Status)
	if o.metrics != nil {
		o.metrics.JobsTotal.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
		o.metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())
	}
}

func newJob(kind Kind) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Log:       []string{},
	}
}

// detectOutputZone finds which knowledge zone the extraction wrote its
// markdown into.
func detectOutputZone(outputDir string) (string, []string, error) {
	for _, zone := range knowledgeZones {
		dir := filepath.Join(outputDir, zone)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		if len(files) > 0 {
			return zone, files, nil
		}
	}
	return "", nil, fmt.Errorf("extraction produced no recognizable output under %s", outputDir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
