package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

func TestDefaultPolicy_Baselines(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 25.0, p.Baseline(domain.CategoryPestControl))
	assert.Equal(t, 15.0, p.Baseline(domain.CategoryFertility))
	assert.Equal(t, 20.0, p.Baseline(domain.CategorySoilAmendment))
	assert.Equal(t, 30.0, p.Baseline(domain.CategoryGrowthEnhancement))
	assert.Equal(t, 1.0, p.MinSavings)
}

func TestPolicy_Lookups(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, "cereals", p.FamilyOf("Maize"))
	assert.Equal(t, "", p.FamilyOf("dragonfruit"))
	assert.True(t, p.IsWildcardCrop("ALL"))
	assert.True(t, p.IsWildcardCrop("*"))
	assert.False(t, p.IsWildcardCrop("maize"))
	assert.True(t, p.IsSouthern("South Africa"))
	assert.False(t, p.IsSouthern("Kenya"))
	assert.Equal(t, "3-5 days", p.DefaultTimeToResult(domain.CategoryPestControl))
	assert.Equal(t, "1-2 weeks", p.DefaultTimeToResult(domain.Category("unknown")))
}

func TestParsePolicy_OverridesAndAliases(t *testing.T) {
	doc := []byte(`
baselines:
  pesticide: 30
  fertilizer: 10
min_savings: 2
urgent_terms: [" Locust "]
crop_families:
  Cereals: [Teff, Maize]
`)
	p, err := ParsePolicy(doc)
	require.NoError(t, err)
	assert.Equal(t, 30.0, p.Baseline(domain.CategoryPestControl))
	assert.Equal(t, 10.0, p.Baseline(domain.CategoryFertility))
	// a table present in the document replaces the default table
	assert.Equal(t, 0.0, p.Baseline(domain.CategorySoilAmendment))
	assert.Equal(t, 2.0, p.MinSavings)
	assert.Equal(t, []string{"locust"}, p.UrgentTerms)
	assert.Equal(t, "cereals", p.FamilyOf("teff"))
	// untouched tables keep their defaults
	assert.NotEmpty(t, p.ModerateTerms)
	assert.NotEmpty(t, p.SouthernRegions)
}

func TestParsePolicy_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "baselines: [1, 2"},
		{"unknown category", "baselines:\n  herbicide: 3\n"},
		{"negative baseline", "baselines:\n  pesticide: -3\n"},
		{"zero min savings", "min_savings: 0\n"},
		{"unknown hint category", "category_hints:\n  magic: [x]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy_File(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadPolicy(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy().MinSavings, p.MinSavings)

	p, err = LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Baseline(domain.CategoryPestControl))

	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_savings: 3\n"), 0o600))
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.MinSavings)
}
