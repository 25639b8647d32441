package knowledge

import "testing"

func TestSourcePrefix(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"gammes.disques-de-frein", "gammes"},
		{"guides/remplacement-plaquettes.md", "guides"},
		{"faq.retours", "faq"},
		{"standalone", "standalone"},
	}
	for _, tt := range tests {
		if got := SourcePrefix(tt.source); got != tt.want {
			t.Errorf("SourcePrefix(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestParentSource(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"guides/montage-freins-section-2.md", "guides/montage-freins.md"},
		{"guides/montage-freins_part3.md", "guides/montage-freins.md"},
		{"guides/montage-freins-section.md", "guides/montage-freins.md"},
		{"guides/montage-freins.md", "guides/montage-freins.md"},
		{"web/article-partition.md", "web/article-partition.md"},
		{"gammes.disques", "gammes.disques"},
	}
	for _, tt := range tests {
		if got := ParentSource(tt.source); got != tt.want {
			t.Errorf("ParentSource(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestParentSourceCollapsesSections(t *testing.T) {
	a := ParentSource("guides/purge-liquide-section-1.md")
	b := ParentSource("guides/purge-liquide-section-2.md")
	if a != b {
		t.Fatalf("sections of one document map to different parents: %s vs %s", a, b)
	}
}

func TestTruthLevelValid(t *testing.T) {
	for _, l := range []TruthLevel{TruthL1, TruthL2, TruthL3, TruthL4} {
		if !l.Valid() {
			t.Errorf("TruthLevel(%q).Valid() = false, want true", l)
		}
	}
	if TruthLevel("L5").Valid() {
		t.Error(`TruthLevel("L5").Valid() = true, want false`)
	}
}
