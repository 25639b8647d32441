package intent

import (
	"reflect"
	"testing"
)

func TestBuildFiltersDefaults(t *testing.T) {
	f := BuildFilters(Classify("plaquettes de frein avant"))
	if !reflect.DeepEqual(f.TruthLevels, []string{"L1", "L2"}) {
		t.Fatalf("TruthLevels = %v, want [L1 L2]", f.TruthLevels)
	}
	if len(f.Categories) != 0 {
		t.Fatalf("Categories = %v, want none", f.Categories)
	}
	if !f.RetrievableOnly {
		t.Fatal("RetrievableOnly = false, want true")
	}
}

func TestBuildFiltersTroubleshootOpensL3(t *testing.T) {
	f := BuildFilters(Classify("bruit au freinage"))
	if !reflect.DeepEqual(f.TruthLevels, []string{"L1", "L2", "L3"}) {
		t.Fatalf("TruthLevels = %v, want [L1 L2 L3]", f.TruthLevels)
	}
}

func TestBuildFiltersPolicyPinsCategory(t *testing.T) {
	f := BuildFilters(Classify("comment retourner un article"))
	if !reflect.DeepEqual(f.Categories, []string{"policy"}) {
		t.Fatalf("Categories = %v, want [policy]", f.Categories)
	}
	if !reflect.DeepEqual(f.TruthLevels, []string{"L1", "L2"}) {
		t.Fatalf("TruthLevels = %v, want [L1 L2]", f.TruthLevels)
	}
}

func TestBuildFiltersCostIncludesPricing(t *testing.T) {
	f := BuildFilters(Classify("prix plaquettes avant"))
	if !reflect.DeepEqual(f.Categories, []string{"policy", "pricing"}) {
		t.Fatalf("Categories = %v, want [policy pricing]", f.Categories)
	}
}
