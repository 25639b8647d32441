package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
)

// CleanupMode selects whether the dedup sweep mutates the corpus.
type CleanupMode string

const (
	CleanupDry    CleanupMode = "dry"
	CleanupCommit CleanupMode = "commit"
)

// CleanupReport summarises one batch dedup sweep.
type CleanupReport struct {
	Mode            CleanupMode `json:"mode"`
	Scanned         int         `json:"scanned"`
	DuplicateGroups int         `json:"duplicate_groups"`
	Archived        int         `json:"archived"`
	Actions         []string    `json:"actions"`
}

// Cleanup scans the active corpus for fingerprint collisions that slipped in
// outside the per-ingestion dedup gate (bulk imports, historical data).
type Cleanup struct {
	store  knowledge.Store
	logger *slog.Logger
}

// NewCleanup creates a Cleanup over the given store.
func NewCleanup(store knowledge.Store) *Cleanup {
	return &Cleanup{
		store:  store,
		logger: slog.Default().With("component", "dedup-cleanup"),
	}
}

// Run groups active documents by fingerprint and, within each group larger
// than one, keeps the lexicographically earliest source and archives the
// rest. In dry mode it only reports what commit mode would do.
func (c *Cleanup) Run(ctx context.Context, mode CleanupMode) (*CleanupReport, error) {
	if mode != CleanupDry && mode != CleanupCommit {
		return nil, fmt.Errorf("unknown cleanup mode %q", mode)
	}
	docs, err := c.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning active corpus: %w", err)
	}

	groups := make(map[string][]knowledge.Document)
	for _, d := range docs {
		groups[d.Fingerprint] = append(groups[d.Fingerprint], d)
	}

	report := &CleanupReport{Mode: mode, Scanned: len(docs), Actions: []string{}}
	for fingerprint, group := range groups {
		if len(group) < 2 {
			continue
		}
		report.DuplicateGroups++
		sort.Slice(group, func(i, j int) bool { return group[i].Source < group[j].Source })
		keeper := group[0]
		for _, dup := range group[1:] {
			action := fmt.Sprintf("archive %s (fingerprint %s, duplicate of %s)",
				dup.Source, fingerprint, keeper.Source)
			if mode == CleanupCommit {
				if err := c.store.Archive(ctx, dup.ID, keeper.ID); err != nil {
					return nil, fmt.Errorf("archiving duplicate %s: %w", dup.Source, err)
				}
			}
			report.Archived++
			report.Actions = append(report.Actions, action)
		}
	}
	sort.Strings(report.Actions)
	c.logger.Info("dedup cleanup finished",
		"mode", mode,
		"scanned", report.Scanned,
		"duplicate_groups", report.DuplicateGroups,
		"archived", report.Archived,
	)
	return report, nil
}
