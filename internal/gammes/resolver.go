package gammes

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mecaparts/knowledge-gateway/internal/frontmatter"
	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
)

// SemanticSearcher is the slice of the retrieval client the resolver needs
// for its last-resort content lookup.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, topK int, filters *retrieval.SearchFilters) ([]retrieval.SearchHit, error)
}

// Resolution maps a gamme alias to the files that resolved to it. Multiple
// files may share one alias.
type Resolution map[string][]string

// Aliases returns the resolved aliases in sorted order.
func (r Resolution) Aliases() []string {
	out := make([]string, 0, len(r))
	for alias := range r {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Resolver maps ingested markdown files back to canonical gamme aliases.
// The alias universe is the set of filename stems in the canonical gammes
// directory.
type Resolver struct {
	root           string
	gammesDir      string
	diagnosticsDir string
	search         SemanticSearcher
	logger         *slog.Logger
}

// NewResolver creates a Resolver over the knowledge root. gammesDir and
// diagnosticsDir are relative to the root. search may be nil, disabling the
// semantic fallback layer.
func NewResolver(root, gammesDir, diagnosticsDir string, search SemanticSearcher) *Resolver {
	return &Resolver{
		root:           root,
		gammesDir:      gammesDir,
		diagnosticsDir: diagnosticsDir,
		search:         search,
		logger:         slog.Default().With("component", "gamme-resolver"),
	}
}

// ResolveFiles resolves each markdown file to zero or more aliases using
// the layered strategy: canonical location, explicit frontmatter alias,
// specific category slug, title-to-alias containment, semantic fallback.
func (r *Resolver) ResolveFiles(ctx context.Context, paths []string) Resolution {
	known := r.knownAliases()
	resolution := make(Resolution)
	for _, path := range paths {
		if filepath.Ext(path) != ".md" {
			continue
		}
		for _, alias := range r.resolveOne(ctx, path, known) {
			resolution[alias] = append(resolution[alias], path)
		}
	}
	return resolution
}

// ResolveRecent is the fallback when no explicit file list is available: it
// scans a directory for markdown files modified after cutoff and resolves
// those.
func (r *Resolver) ResolveRecent(ctx context.Context, subdir string, cutoff time.Time) Resolution {
	return r.ResolveFiles(ctx, r.recentFiles(filepath.Join(r.root, subdir), cutoff))
}

// ResolveDiagnostics returns the diagnostic slugs whose files were modified
// after cutoff. Diagnostics resolve purely from filenames, no content parse.
func (r *Resolver) ResolveDiagnostics(cutoff time.Time) []string {
	files := r.recentFiles(filepath.Join(r.root, r.diagnosticsDir), cutoff)
	slugs := make([]string, 0, len(files))
	for _, f := range files {
		slugs = append(slugs, stem(f))
	}
	sort.Strings(slugs)
	return slugs
}

func (r *Resolver) resolveOne(ctx context.Context, path string, known []string) []string {
	// Layer 1: the file lives directly in the canonical gammes directory.
	if filepath.Dir(path) == filepath.Join(r.root, r.gammesDir) {
		return []string{stem(path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("unreadable file skipped", "path", path, "error", err)
		return nil
	}
	content := string(data)
	fields, err := frontmatter.Parse(content)
	if err != nil {
		fields = map[string]string{}
	}

	// Layer 2: explicit alias field names the gamme directly.
	for _, key := range []string{"gamme", "alias"} {
		if v := strings.TrimSpace(fields[key]); v != "" {
			return []string{v}
		}
	}

	// Layer 3: a specific (non-generic) category field, slugified.
	if cat := strings.TrimSpace(fields["category"]); cat != "" && !genericCategories[strings.ToLower(cat)] {
		if slug := Slugify(cat); len(slug) >= minSlugLength {
			return []string{slug}
		}
	}

	// Layer 4: title slug tested for containment against known aliases,
	// longest alias first so short aliases cannot shadow longer ones.
	if title := fields["title"]; title != "" {
		slug := titleSlug(title)
		singular := depluralize(slug)
		for _, alias := range known {
			if strings.Contains(slug, alias) || strings.Contains(singular, alias) {
				return []string{alias}
			}
		}
	}

	// Layer 5: semantic search over a short content snippet.
	if r.search != nil {
		if alias := r.semanticFallback(ctx, content); alias != "" {
			return []string{alias}
		}
	}

	r.logger.Debug("file resolved to no gamme", "path", path)
	return nil
}

// semanticFallback sends a content snippet to the external search; a top
// hit stored under the canonical gammes directory names the alias.
func (r *Resolver) semanticFallback(ctx context.Context, content string) string {
	snippet := contentSnippet(content, 300)
	if snippet == "" {
		return ""
	}
	hits, err := r.search.Search(ctx, snippet, 3, nil)
	if err != nil {
		r.logger.Warn("semantic fallback unavailable", "error", err)
		return ""
	}
	prefix := r.gammesDir + "/"
	for _, hit := range hits {
		if strings.HasPrefix(hit.Source, prefix) || strings.Contains(hit.Source, "/"+prefix) {
			return stem(hit.Source)
		}
	}
	return ""
}

// knownAliases lists the filename stems of the canonical gammes directory,
// longest first.
func (r *Resolver) knownAliases() []string {
	entries, err := os.ReadDir(filepath.Join(r.root, r.gammesDir))
	if err != nil {
		r.logger.Warn("cannot list canonical gammes directory", "error", err)
		return nil
	}
	aliases := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		aliases = append(aliases, stem(e.Name()))
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	return aliases
}

func (r *Resolver) recentFiles(dir string, cutoff time.Time) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Warn("cannot scan directory", "dir", dir, "error", err)
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files
}

// contentSnippet returns up to n runes of body text, skipping the
// frontmatter block and markdown headings.
func contentSnippet(content string, n int) string {
	body := content
	if rest, ok := strings.CutPrefix(strings.TrimSpace(content), "---"); ok {
		if end := strings.Index(rest, "\n---"); end >= 0 {
			body = rest[end+4:]
		}
	}
	var parts []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, line)
	}
	snippet := strings.Join(parts, " ")
	runes := []rune(snippet)
	if len(runes) > n {
		return string(runes[:n])
	}
	return snippet
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
