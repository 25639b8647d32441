package frontmatter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
)

// QuarantineEntry records one file moved out of the intake zone.
type QuarantineEntry struct {
	Filename      string            `json:"filename"`
	OriginalPath  string            `json:"original_path"`
	Reason        string            `json:"reason"`
	Fields        map[string]string `json:"fields"`
	QuarantinedAt time.Time         `json:"quarantined_at"`
}

// IntakeReport is the outcome of one intake-zone validation sweep.
type IntakeReport struct {
	TotalFiles  int               `json:"total_files"`
	ValidFiles  []string          `json:"valid_files"`
	Quarantined []QuarantineEntry `json:"quarantined"`
}

// Intake is the validation gate that runs over freshly ingested files before
// any reindex. Invalid files are moved to the quarantine directory with a
// date-prefixed name and a sidecar reason log.
type Intake struct {
	root          string
	quarantineDir string
	defaultCutoff time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewIntake creates an Intake over the knowledge root. quarantineDir is
// relative to the root. metrics may be nil.
func NewIntake(root, quarantineDir string, defaultCutoff time.Duration, m *metrics.Metrics) *Intake {
	if defaultCutoff <= 0 {
		defaultCutoff = 30 * time.Minute
	}
	return &Intake{
		root:          root,
		quarantineDir: filepath.Join(root, quarantineDir),
		defaultCutoff: defaultCutoff,
		metrics:       m,
		logger:        slog.Default().With("component", "intake-validator"),
	}
}

// ValidateZone lists markdown files under root/subdir modified after cutoff
// (zero cutoff means "within the default window"), validates each one, and
// quarantines the invalid ones. The returned report carries the surviving
// valid paths in the order they were found.
func (in *Intake) ValidateZone(subdir string, cutoff time.Time) (*IntakeReport, error) {
	if cutoff.IsZero() {
		cutoff = time.Now().Add(-in.defaultCutoff)
	}
	dir := filepath.Join(in.root, subdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading intake zone %s: %w", dir, err)
	}

	report := &IntakeReport{ValidFiles: []string{}, Quarantined: []QuarantineEntry{}}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		report.TotalFiles++
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading intake file %s: %w", path, err)
		}

		result := ValidateContent(string(data))
		if result.Valid {
			report.ValidFiles = append(report.ValidFiles, path)
			continue
		}
		qe, err := in.quarantine(path, subdir, result)
		if err != nil {
			return nil, err
		}
		report.Quarantined = append(report.Quarantined, *qe)
	}

	in.logger.Info("intake zone validated",
		"zone", subdir,
		"total", report.TotalFiles,
		"valid", len(report.ValidFiles),
		"quarantined", len(report.Quarantined),
	)
	return report, nil
}

// quarantine moves an invalid file into the quarantine directory under a
// date-prefixed name and writes the sidecar reason log next to it.
func (in *Intake) quarantine(path, subdir string, result Result) (*QuarantineEntry, error) {
	if err := os.MkdirAll(in.quarantineDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine dir: %w", err)
	}
	now := time.Now().UTC()
	name := now.Format("2006-01-02") + "-" + filepath.Base(path)
	dest := filepath.Join(in.quarantineDir, name)
	if err := os.Rename(path, dest); err != nil {
		return nil, fmt.Errorf("quarantining %s: %w", path, err)
	}

	entry := &QuarantineEntry{
		Filename:      name,
		OriginalPath:  filepath.Join(subdir, filepath.Base(path)),
		Reason:        strings.Join(result.Reasons, "; "),
		Fields:        result.Fields,
		QuarantinedAt: now,
	}
	if err := in.writeSidecar(dest, entry); err != nil {
		// The file is already quarantined; a missing sidecar is logged, not fatal.
		in.logger.Error("failed to write quarantine sidecar", "file", name, "error", err)
	}
	if in.metrics != nil {
		in.metrics.DocumentsQuarantined.Inc()
	}
	in.logger.Warn("file quarantined",
		"file", name,
		"original_path", entry.OriginalPath,
		"reason", entry.Reason,
	)
	return entry, nil
}

// writeSidecar writes the human-readable reason log as plain key:value lines.
func (in *Intake) writeSidecar(dest string, entry *QuarantineEntry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "quarantined_at: %s\n", entry.QuarantinedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "original_path: %s\n", entry.OriginalPath)
	fmt.Fprintf(&b, "reason: %s\n", entry.Reason)
	fmt.Fprintf(&b, "details: title=%q source_type=%q doc_family=%q truth_level=%q\n",
		entry.Fields["title"], entry.Fields["source_type"],
		entry.Fields["doc_family"], entry.Fields["truth_level"])
	fmt.Fprintf(&b, "action: moved to quarantine, excluded from reindex\n")
	return os.WriteFile(dest+".reason.log", []byte(b.String()), 0o644)
}
