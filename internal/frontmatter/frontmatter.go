// Package frontmatter parses and validates per-document metadata blocks and
// runs the intake-zone gate that quarantines malformed documents before they
// reach the ingestion pipeline.
package frontmatter

import (
	"fmt"
	"strings"

	"github.com/mecaparts/knowledge-gateway/internal/knowledge"
	"gopkg.in/yaml.v3"
)

// SourceType is the declared origin kind of an ingested document.
type SourceType string

const (
	SourceGamme      SourceType = "gamme"
	SourceGuide      SourceType = "guide"
	SourceDiagnostic SourceType = "diagnostic"
	SourceFAQ        SourceType = "faq"
	SourcePolicy     SourceType = "policy"
	SourceGeneral    SourceType = "general"
)

// DocFamily is the knowledge-document family used for downstream routing.
type DocFamily string

const (
	FamilyCatalog    DocFamily = "catalog"
	FamilyDiagnostic DocFamily = "diagnostic"
	FamilyKnowledge  DocFamily = "knowledge"
	FamilyGuide      DocFamily = "guide"
)

var validSourceTypes = map[SourceType]bool{
	SourceGamme: true, SourceGuide: true, SourceDiagnostic: true,
	SourceFAQ: true, SourcePolicy: true, SourceGeneral: true,
}

var validDocFamilies = map[DocFamily]bool{
	FamilyCatalog: true, FamilyDiagnostic: true, FamilyKnowledge: true, FamilyGuide: true,
}

// familyBySourceType infers doc_family when the frontmatter omits it.
var familyBySourceType = map[SourceType]DocFamily{
	SourceGamme:      FamilyCatalog,
	SourceGuide:      FamilyGuide,
	SourceDiagnostic: FamilyDiagnostic,
	SourceFAQ:        FamilyKnowledge,
	SourcePolicy:     FamilyKnowledge,
	SourceGeneral:    FamilyKnowledge,
}

// intakeTruthLevels restricts truth_level at ingestion time. L4 exists in
// the broader taxonomy but is never accepted through the intake gate.
var intakeTruthLevels = map[knowledge.TruthLevel]bool{
	knowledge.TruthL1: true,
	knowledge.TruthL2: true,
	knowledge.TruthL3: true,
}

var requiredFields = []string{"title", "source_type", "doc_family", "truth_level"}

// Result is the outcome of validating one document's frontmatter.
type Result struct {
	Valid   bool              `json:"valid"`
	Reasons []string          `json:"reasons,omitempty"`
	Fields  map[string]string `json:"fields"`
	Family  DocFamily         `json:"family,omitempty"`
}

// Parse extracts the leading '---' delimited metadata block from a document
// and returns it as flat key/value pairs. It first attempts a strict YAML
// decode; documents scraped from the web routinely carry frontmatter that
// is not valid YAML, so a tolerant flat line parse is the fallback (quotes
// stripped, comments and list markers ignored).
func Parse(content string) (map[string]string, error) {
	block, err := extractBlock(content)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := yaml.Unmarshal([]byte(block), &decoded); err == nil && decoded != nil {
		fields := make(map[string]string, len(decoded))
		for k, v := range decoded {
			switch val := v.(type) {
			case string:
				fields[strings.TrimSpace(k)] = strings.TrimSpace(val)
			case nil:
				fields[strings.TrimSpace(k)] = ""
			default:
				fields[strings.TrimSpace(k)] = strings.TrimSpace(fmt.Sprint(val))
			}
		}
		return fields, nil
	}

	return parseFlat(block), nil
}

// extractBlock returns the text between the leading frontmatter delimiters.
func extractBlock(content string) (string, error) {
	trimmed := strings.TrimLeft(content, "\uFEFF \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return "", fmt.Errorf("no frontmatter block")
	}
	rest := trimmed[3:]
	rest = strings.TrimPrefix(rest, "\r")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", fmt.Errorf("unterminated frontmatter block")
	}
	return rest[:end], nil
}

// parseFlat reads the block as flat "key: value" lines.
func parseFlat(block string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "- ") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			fields[key] = value
		}
	}
	return fields
}

// Validate checks the parsed fields against the intake contract: required
// fields present, enumerated values valid, truth level within the intake
// range. One reason code is returned per violation. On success the
// knowledge-document family is inferred for downstream routing.
func Validate(fields map[string]string) Result {
	result := Result{Fields: fields}

	// doc_family may be inferred from source_type before the required check.
	if fields["doc_family"] == "" && fields["source_type"] != "" {
		if family, ok := familyBySourceType[SourceType(fields["source_type"])]; ok {
			fields["doc_family"] = string(family)
		}
	}

	for _, field := range requiredFields {
		if fields[field] == "" {
			result.Reasons = append(result.Reasons, fmt.Sprintf("MISSING_REQUIRED_FIELD: %s", field))
		}
	}
	if v := fields["source_type"]; v != "" && !validSourceTypes[SourceType(v)] {
		result.Reasons = append(result.Reasons, fmt.Sprintf("INVALID_SOURCE_TYPE: %s", v))
	}
	if v := fields["doc_family"]; v != "" && !validDocFamilies[DocFamily(v)] {
		result.Reasons = append(result.Reasons, fmt.Sprintf("INVALID_DOC_FAMILY: %s", v))
	}
	if v := fields["truth_level"]; v != "" && !intakeTruthLevels[knowledge.TruthLevel(v)] {
		result.Reasons = append(result.Reasons, fmt.Sprintf("INVALID_TRUTH_LEVEL: %s", v))
	}

	if len(result.Reasons) > 0 {
		return result
	}
	result.Valid = true
	result.Family = DocFamily(fields["doc_family"])
	return result
}

// ValidateContent parses and validates a whole document. Parse failures
// surface as an invalid result rather than an error so the intake gate can
// quarantine them with a reason.
func ValidateContent(content string) Result {
	fields, err := Parse(content)
	if err != nil {
		return Result{
			Fields:  map[string]string{},
			Reasons: []string{fmt.Sprintf("MALFORMED_FRONTMATTER: %v", err)},
		}
	}
	return Validate(fields)
}
