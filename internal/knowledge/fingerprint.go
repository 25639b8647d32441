package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint computes the near-duplicate key for a document's content: a
// 16-hex-character digest of the content after lower-casing, folding
// diacritics, and dropping everything that is not a letter or digit. Two
// documents with the same fingerprint are considered identical in substance.
func Fingerprint(content string) string {
	normalized := NormalizeContent(content)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}

// NormalizeContent applies the fingerprint normalization rules: lowercase,
// NFD decomposition with combining marks stripped, and removal of all
// non-alphanumeric runes (whitespace and punctuation included).
func NormalizeContent(content string) string {
	lowered := strings.ToLower(content)
	decomposed := norm.NFD.String(lowered)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
