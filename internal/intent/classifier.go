// Package intent classifies free-text user queries into retrieval intents
// and derives the retrieval constraints applied before calling the external
// service.
package intent

import (
	"regexp"
	"strings"
)

// UserIntent is one of the nine recognized query intents.
type UserIntent string

const (
	IntentFitment      UserIntent = "fitment"
	IntentTroubleshoot UserIntent = "troubleshoot"
	IntentPolicy       UserIntent = "policy"
	IntentCost         UserIntent = "cost"
	IntentCompare      UserIntent = "compare"
	IntentMaintain     UserIntent = "maintain"
	IntentDo           UserIntent = "do"
	IntentDefine       UserIntent = "define"
	IntentChoose       UserIntent = "choose"
)

// Classification is the derived triple for a query. It is never persisted,
// only aggregated in the rolling stats.
type Classification struct {
	UserIntent   UserIntent `json:"userIntent"`
	IntentFamily string     `json:"intentFamily"`
	PageIntent   string     `json:"pageIntent"`
	Confidence   float64    `json:"confidence"`
}

// rule is one entry of the ordered classification table: the first rule
// whose pattern set matches wins.
type rule struct {
	intent     UserIntent
	family     string
	page       string
	confidence float64
	patterns   []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// rules is evaluated top to bottom against the trimmed, lower-cased query.
// The ordering is part of the contract: troubleshoot outranks maintain,
// cost outranks compare, and choose is the catch-all.
var rules = []rule{
	{
		intent: IntentFitment, family: "compatibility", page: "vehicle-selector", confidence: 0.9,
		patterns: compile(
			`compatib`,
			`pour (ma|mon|une|un) `,
			`s'adapte`,
			`convient`,
			`monte sur`,
		),
	},
	{
		intent: IntentTroubleshoot, family: "support", page: "diagnostic", confidence: 0.9,
		patterns: compile(
			`bruit`,
			`panne`,
			`probl[eè]me`,
			`fuite`,
			`vibr(e|ation)`,
			`voyant`,
			`grince`,
			`ne (fonctionne|marche|freine) (pas|plus)`,
		),
	},
	{
		intent: IntentPolicy, family: "commerce", page: "policy", confidence: 0.85,
		patterns: compile(
			`retour`,
			`rembours`,
			`garantie`,
			`livraison`,
			`d[eé]lai`,
			`annul`,
		),
	},
	{
		intent: IntentCost, family: "commerce", page: "pricing", confidence: 0.85,
		patterns: compile(
			`prix`,
			`co[uû]te?`,
			`tarif`,
			`combien`,
			`pas cher`,
			`€`,
		),
	},
	{
		intent: IntentCompare, family: "decision", page: "comparison", confidence: 0.8,
		patterns: compile(
			`diff[eé]rence`,
			`versus`,
			`\bvs\b`,
			`compar`,
			`mieux que`,
		),
	},
	{
		intent: IntentMaintain, family: "howto", page: "maintenance-guide", confidence: 0.8,
		patterns: compile(
			`entret(ien|enir)`,
			`quand (changer|remplacer)`,
			`tous les combien`,
			`dur[eé]e de vie`,
			`intervalle`,
		),
	},
	{
		intent: IntentDo, family: "howto", page: "tutorial", confidence: 0.8,
		patterns: compile(
			`comment (changer|remplacer|monter|d[eé]monter|installer|purger|r[eé]gler)`,
			`tuto`,
			`[eé]tapes`,
		),
	},
	{
		intent: IntentDefine, family: "informational", page: "glossary", confidence: 0.75,
		patterns: compile(
			`qu'est[- ]ce`,
			`c'est quoi`,
			`d[eé]finition`,
			`[aà] quoi sert`,
			`r[oô]le (de|d'|du)`,
		),
	},
}

// catchAll is returned when no rule family matches.
var catchAll = Classification{
	UserIntent:   IntentChoose,
	IntentFamily: "decision",
	PageIntent:   "category",
	Confidence:   0.3,
}

// Classify maps a message to its intent triple. It is a pure function of
// the input string; the first matching rule family wins.
func Classify(message string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return catchAll
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(normalized) {
				return Classification{
					UserIntent:   r.intent,
					IntentFamily: r.family,
					PageIntent:   r.page,
					Confidence:   r.confidence,
				}
			}
		}
	}
	return catchAll
}
