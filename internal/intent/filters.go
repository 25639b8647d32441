package intent

import (
	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
)

// BuildFilters derives the retrieval constraints for a classified query.
// Every intent is restricted to retrievable documents at the authoritative
// levels; troubleshoot additionally opens community content, and the
// commerce intents pin the category.
func BuildFilters(c Classification) *retrieval.SearchFilters {
	filters := &retrieval.SearchFilters{
		TruthLevels:     []string{string(knowledge.TruthL1), string(knowledge.TruthL2)},
		RetrievableOnly: true,
	}
	switch c.UserIntent {
	case IntentTroubleshoot:
		filters.TruthLevels = append(filters.TruthLevels, string(knowledge.TruthL3))
	case IntentPolicy:
		filters.Categories = []string{string(knowledge.CategoryPolicy)}
	case IntentCost:
		filters.Categories = []string{string(knowledge.CategoryPolicy), string(knowledge.CategoryPricing)}
	}
	return filters
}
