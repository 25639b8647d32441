// Package gammes resolves ingested knowledge files to canonical product
// category ("gamme") aliases through a layered heuristic strategy, with the
// external semantic search as a last resort.
package gammes

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// genericCategories are frontmatter category values too vague to name a
// gamme; layer 3 skips them.
var genericCategories = map[string]bool{
	"gamme": true, "gammes": true, "produit": true, "produits": true,
	"general": true, "autre": true, "categorie": true,
}

// leadingArticles are French articles stripped from the front of a title
// slug before alias matching.
var leadingArticles = []string{"les-", "le-", "la-", "l-", "une-", "un-", "des-", "du-", "de-"}

// trailingSuffixes are marketing and section suffixes that titles carry but
// aliases never do.
var trailingSuffixes = regexp.MustCompile(`-(pas-cher|prix|achat|promo|guide|conseils?|section-?\d*|partie-?\d*)$`)

const minSlugLength = 4

// Slugify lower-cases, folds diacritics, and converts every run of
// non-alphanumeric characters to a single hyphen.
func Slugify(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	lastHyphen := true
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// titleSlug slugifies a document title and strips the noise that keeps it
// from matching an alias: trailing marketing/section suffixes, then leading
// articles.
func titleSlug(title string) string {
	slug := Slugify(title)
	for {
		stripped := trailingSuffixes.ReplaceAllString(slug, "")
		if stripped == slug {
			break
		}
		slug = stripped
	}
	for _, article := range leadingArticles {
		if strings.HasPrefix(slug, article) {
			slug = strings.TrimPrefix(slug, article)
			break
		}
	}
	return slug
}

// depluralize strips a single trailing "s". A weak heuristic for French
// plural forms ("-aux", "-eaux" are not handled), kept deliberately.
func depluralize(slug string) string {
	if len(slug) > 1 && strings.HasSuffix(slug, "s") {
		return slug[:len(slug)-1]
	}
	return slug
}
