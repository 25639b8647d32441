package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
)

// ExtractResult is what an extraction run produced.
type ExtractResult struct {
	OutputDir string
	LogLines  []string
}

// Worker is the typed interface over the external content-extraction
// process. The subprocess/sandbox detail lives behind it, not in the
// orchestration logic.
type Worker interface {
	// ExtractURL extracts a web page into outDir and reports the run log.
	ExtractURL(ctx context.Context, url, truthLevel, outDir string) (*ExtractResult, error)
	// SubmitPDF hands a staged PDF to the external worker and returns the
	// worker-side job id to poll.
	SubmitPDF(ctx context.Context, stagedPath string) (string, error)
	// JobStatus polls a worker-side job.
	JobStatus(ctx context.Context, workerJobID string) (*retrieval.JobStatus, error)
}

// CommandWorker shells out to the extractor binary for extraction and
// submission, and polls job status through the retrieval service. The
// extractor takes an advisory file lock during reindex; this process only
// triggers it.
type CommandWorker struct {
	bin    string
	status *retrieval.Client
	logger *slog.Logger
}

// NewCommandWorker creates a CommandWorker around the given binary.
func NewCommandWorker(bin string, status *retrieval.Client) *CommandWorker {
	return &CommandWorker{
		bin:    bin,
		status: status,
		logger: slog.Default().With("component", "extraction-worker", "bin", bin),
	}
}

func (w *CommandWorker) ExtractURL(ctx context.Context, url, truthLevel, outDir string) (*ExtractResult, error) {
	args := []string{"extract-url", "--url", url, "--out", outDir}
	if truthLevel != "" {
		args = append(args, "--truth-level", truthLevel)
	}
	lines, err := w.run(ctx, args)
	if err != nil {
		return &ExtractResult{OutputDir: outDir, LogLines: lines}, err
	}
	return &ExtractResult{OutputDir: outDir, LogLines: lines}, nil
}

func (w *CommandWorker) SubmitPDF(ctx context.Context, stagedPath string) (string, error) {
	lines, err := w.run(ctx, []string{"submit-pdf", "--file", stagedPath})
	if err != nil {
		return "", err
	}
	// The submit command prints the worker job id as its last line.
	for i := len(lines) - 1; i >= 0; i-- {
		if id := strings.TrimSpace(lines[i]); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("extractor returned no job id for %s", stagedPath)
}

func (w *CommandWorker) JobStatus(ctx context.Context, workerJobID string) (*retrieval.JobStatus, error) {
	return w.status.GetJobStatus(ctx, workerJobID)
}

func (w *CommandWorker) run(ctx context.Context, args []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, w.bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	lines := scanLines(&out)
	if err != nil {
		w.logger.Error("extractor command failed", "args", args, "error", err)
		return lines, fmt.Errorf("running %s %s: %w", w.bin, strings.Join(args, " "), err)
	}
	return lines, nil
}

func scanLines(buf *bytes.Buffer) []string {
	var lines []string
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
