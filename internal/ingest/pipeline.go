// Package ingest implements the admission-control pipeline that decides
// whether a knowledge document may be published into the retrieval corpus:
// source compatibility, domain quota, content deduplication, and default
// retrievability.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
)

// Outcome is the terminal decision for one ingested document.
type Outcome string

const (
	OutcomeAcceptUpsert       Outcome = "ACCEPT_UPSERT"
	OutcomeRejectQuarantine   Outcome = "REJECT_QUARANTINE"
	OutcomeArchiveAsDuplicate Outcome = "ARCHIVE_AS_DUPLICATE"
	OutcomeArchiveByQuota     Outcome = "ARCHIVE_BY_QUOTA"
)

// Proposed is the persistence state a decision proposes for the document.
type Proposed struct {
	Status        knowledge.DocumentStatus `json:"status"`
	Retrievable   bool                     `json:"retrievable"`
	DuplicateOfID string                   `json:"duplicate_of_id,omitempty"`
}

// Decision is produced once per document and consumed immediately by the
// apply step; it is never persisted independently.
type Decision struct {
	Outcome      Outcome  `json:"outcome"`
	Reasons      []string `json:"reasons"`
	Fingerprint  string   `json:"fingerprint"`
	ParentSource string   `json:"parent_source"`
	Proposed     Proposed `json:"proposed"`
}

// compatRule lists what a source prefix is allowed to carry.
type compatRule struct {
	categories map[knowledge.Category]bool
	levels     map[knowledge.TruthLevel]bool
}

// compatibilityMatrix maps a source prefix (text before the first '.' or
// '/') to its allowed categories and truth levels.
var compatibilityMatrix = map[string]compatRule{
	"gammes": {
		categories: categorySet(knowledge.CategoryCatalog),
		levels:     levelSet(knowledge.TruthL1, knowledge.TruthL2),
	},
	"guides": {
		categories: categorySet(knowledge.CategoryGuide, knowledge.CategoryKnowledge),
		levels:     levelSet(knowledge.TruthL1, knowledge.TruthL2, knowledge.TruthL3),
	},
	"diagnostics": {
		categories: categorySet(knowledge.CategoryDiagnostic),
		levels:     levelSet(knowledge.TruthL1, knowledge.TruthL2, knowledge.TruthL3),
	},
	"faq": {
		categories: categorySet(knowledge.CategoryKnowledge),
		levels:     levelSet(knowledge.TruthL2, knowledge.TruthL3),
	},
	"policies": {
		categories: categorySet(knowledge.CategoryPolicy),
		levels:     levelSet(knowledge.TruthL1, knowledge.TruthL2),
	},
	"web": {
		categories: categorySet(knowledge.CategoryCatalog, knowledge.CategoryGuide, knowledge.CategoryKnowledge),
		levels:     levelSet(knowledge.TruthL2, knowledge.TruthL3, knowledge.TruthL4),
	},
}

// domainQuotas caps the number of simultaneously active documents per
// topical domain. Domains not listed fall back to defaultDomainQuota.
var domainQuotas = map[string]int{
	"freinage":     40,
	"filtration":   40,
	"embrayage":    30,
	"distribution": 30,
}

const defaultDomainQuota = 50

func categorySet(cats ...knowledge.Category) map[knowledge.Category]bool {
	m := make(map[knowledge.Category]bool, len(cats))
	for _, c := range cats {
		m[c] = true
	}
	return m
}

func levelSet(levels ...knowledge.TruthLevel) map[knowledge.TruthLevel]bool {
	m := make(map[knowledge.TruthLevel]bool, len(levels))
	for _, l := range levels {
		m[l] = true
	}
	return m
}

// Pipeline runs the four admission gates against the document store.
type Pipeline struct {
	store   knowledge.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline over the given store. metrics may be nil.
func NewPipeline(store knowledge.Store, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:   store,
		metrics: m,
		logger:  slog.Default().With("component", "ingest-pipeline"),
	}
}

// Decide runs the gates in order, short-circuiting on the first rejection.
// Quota is checked before dedup: a duplicate in an over-quota domain
// reports ARCHIVE_BY_QUOTA.
func (p *Pipeline) Decide(ctx context.Context, doc *knowledge.IngestDocument) (*Decision, error) {
	decision := &Decision{
		Fingerprint:  knowledge.Fingerprint(doc.Content),
		ParentSource: knowledge.ParentSource(doc.Source),
	}

	// Gate 1: source compatibility.
	prefix := knowledge.SourcePrefix(doc.Source)
	rule, known := compatibilityMatrix[prefix]
	if !known {
		return p.quarantine(decision, fmt.Sprintf("UNKNOWN_SOURCE_PREFIX: %s", prefix)), nil
	}
	if !rule.categories[doc.Category] {
		return p.quarantine(decision, fmt.Sprintf("CATEGORY_NOT_ALLOWED: %s for prefix %s", doc.Category, prefix)), nil
	}
	if !rule.levels[doc.TruthLevel] {
		return p.quarantine(decision, fmt.Sprintf("TRUTH_LEVEL_NOT_ALLOWED: %s for prefix %s", doc.TruthLevel, prefix)), nil
	}

	// Gate 2: domain quota.
	quota, ok := domainQuotas[doc.Domain]
	if !ok {
		quota = defaultDomainQuota
	}
	active, err := p.store.ActiveCountByDomain(ctx, doc.Domain)
	if err != nil {
		return nil, fmt.Errorf("quota check for domain %s: %w", doc.Domain, err)
	}
	if active >= quota {
		decision.Outcome = OutcomeArchiveByQuota
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("DOMAIN_QUOTA_REACHED: %s has %d active documents (cap %d)", doc.Domain, active, quota))
		decision.Proposed = Proposed{Status: knowledge.StatusArchived, Retrievable: false}
		return p.record(decision), nil
	}

	// Gate 3: exact dedup on the normalized-content fingerprint.
	existing, err := p.store.FindActiveByFingerprint(ctx, decision.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil && existing.ParentSource != decision.ParentSource {
		decision.Outcome = OutcomeArchiveAsDuplicate
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("DUPLICATE_CONTENT: fingerprint %s already active as %s", decision.Fingerprint, existing.Source))
		decision.Proposed = Proposed{
			Status:        knowledge.StatusArchived,
			Retrievable:   false,
			DuplicateOfID: existing.ID,
		}
		return p.record(decision), nil
	}

	// Gate 4: default retrievability. Not a rejection, only a flag.
	retrievable := true
	if doc.TruthLevel == knowledge.TruthL4 {
		retrievable = false
		decision.Reasons = append(decision.Reasons, "NON_RETRIEVABLE_BY_DEFAULT: truth level L4")
	}
	if doc.Category == knowledge.CategoryPolicy {
		retrievable = false
		decision.Reasons = append(decision.Reasons, "NON_RETRIEVABLE_BY_DEFAULT: policy category")
	}

	decision.Outcome = OutcomeAcceptUpsert
	decision.Proposed = Proposed{Status: knowledge.StatusActive, Retrievable: retrievable}
	return p.record(decision), nil
}

// Apply persists the decided state, keyed by the parent source so that
// re-ingesting the same logical section updates rather than duplicates.
func (p *Pipeline) Apply(ctx context.Context, doc *knowledge.IngestDocument, decision *Decision) (*knowledge.Document, error) {
	stored := &knowledge.Document{
		Title:        doc.Title,
		Content:      doc.Content,
		Source:       doc.Source,
		ParentSource: decision.ParentSource,
		Fingerprint:  decision.Fingerprint,
		Domain:       doc.Domain,
		Category:     doc.Category,
		TruthLevel:   doc.TruthLevel,
		Status:       decision.Proposed.Status,
		Retrievable:  decision.Proposed.Retrievable,
		DuplicateOf:  decision.Proposed.DuplicateOfID,
	}
	if decision.Outcome == OutcomeRejectQuarantine {
		stored.QuarantineReason = joinReasons(decision.Reasons)
	}
	persisted, err := p.store.Upsert(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("applying %s decision for %s: %w", decision.Outcome, doc.Source, err)
	}
	p.logger.Info("ingest decision applied",
		"outcome", decision.Outcome,
		"source", doc.Source,
		"parent_source", decision.ParentSource,
		"doc_id", persisted.ID,
	)
	return persisted, nil
}

// Ingest decides and immediately applies, the only supported usage.
func (p *Pipeline) Ingest(ctx context.Context, doc *knowledge.IngestDocument) (*Decision, *knowledge.Document, error) {
	decision, err := p.Decide(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	stored, err := p.Apply(ctx, doc, decision)
	if err != nil {
		return nil, nil, err
	}
	return decision, stored, nil
}

func (p *Pipeline) quarantine(decision *Decision, reason string) *Decision {
	decision.Outcome = OutcomeRejectQuarantine
	decision.Reasons = append(decision.Reasons, reason)
	decision.Proposed = Proposed{Status: knowledge.StatusQuarantined, Retrievable: false}
	return p.record(decision)
}

func (p *Pipeline) record(decision *Decision) *Decision {
	if p.metrics != nil {
		p.metrics.IngestDecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()
	}
	return decision
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}
