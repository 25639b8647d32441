package frontmatter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherSweepsBurstOfNewFiles(t *testing.T) {
	root := t.TempDir()
	intakeDir := filepath.Join(root, "intake")
	if err := os.MkdirAll(intakeDir, 0o755); err != nil {
		t.Fatal(err)
	}

	intake := NewIntake(root, "quarantine", 30*time.Minute, nil)
	w := NewWatcher(intake, "intake", 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	invalid := "---\ntitle: Sans niveau\nsource_type: guide\n---\ncontenu\n"
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		if err := os.WriteFile(filepath.Join(intakeDir, name), []byte(invalid), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(intakeDir, "notes.txt"), []byte("ignore"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		entries, err := os.ReadDir(intakeDir)
		if err != nil {
			t.Fatal(err)
		}
		mdLeft := 0
		for _, e := range entries {
			if filepath.Ext(e.Name()) == ".md" {
				mdLeft++
			}
		}
		if mdLeft == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d markdown files still in intake after sweep window", mdLeft)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := os.Stat(filepath.Join(intakeDir, "notes.txt")); err != nil {
		t.Fatalf("non-markdown file was touched: %v", err)
	}
	quarantined, err := os.ReadDir(filepath.Join(root, "quarantine"))
	if err != nil {
		t.Fatalf("reading quarantine: %v", err)
	}
	moved := 0
	for _, e := range quarantined {
		if filepath.Ext(e.Name()) == ".md" {
			moved++
		}
	}
	if moved != 3 {
		t.Fatalf("quarantined %d files, want 3", moved)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWatcherFailsOnMissingZone(t *testing.T) {
	intake := NewIntake(t.TempDir(), "quarantine", 30*time.Minute, nil)
	w := NewWatcher(intake, "absent", 10*time.Millisecond)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start() = nil, want error for missing zone")
	}
}
