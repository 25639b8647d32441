package frontmatter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers an intake-zone validation sweep when files land in the
// intake directory. Bursts of filesystem events (an extractor writing many
// files) are debounced into a single sweep.
type Watcher struct {
	intake   *Intake
	subdir   string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over root/subdir.
func NewWatcher(intake *Intake, subdir string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		intake:   intake,
		subdir:   subdir,
		debounce: debounce,
		logger:   slog.Default().With("component", "intake-watcher", "zone", subdir),
	}
}

// Start watches the intake zone until ctx is cancelled. Each debounced
// burst of create/write events runs one validation sweep.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating intake watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Join(w.intake.root, w.subdir)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching intake zone %s: %w", dir, err)
	}
	w.logger.Info("intake watcher started", "dir", dir)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("intake watcher stopping", "reason", ctx.Err())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if filepath.Ext(event.Name) != ".md" {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("intake watcher error", "error", err)
		case <-timer.C:
			pending = false
			report, err := w.intake.ValidateZone(w.subdir, time.Time{})
			if err != nil {
				w.logger.Error("intake sweep failed", "error", err)
				continue
			}
			w.logger.Info("intake sweep completed",
				"valid", len(report.ValidFiles),
				"quarantined", len(report.Quarantined),
			)
		}
	}
}
