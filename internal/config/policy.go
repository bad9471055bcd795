package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Policy holds the tunable business tables used by scoring and materialization.
// Numbers here are plausible, bounded and deterministic; none of them is load-bearing.
type Policy struct {
	// Baselines is the commercial-alternative cost per category.
	Baselines  map[domain.Category]float64 `yaml:"baselines"`
	MinSavings float64                     `yaml:"min_savings"`
	// TimeToResult is the fallback when a candidate has none.
	TimeToResult map[domain.Category]string `yaml:"time_to_result"`
	// UrgentTerms and ModerateTerms drive urgency; matching is case-insensitive containment.
	UrgentTerms   []string `yaml:"urgent_terms"`
	ModerateTerms []string `yaml:"moderate_terms"`
	// CropFamilies maps a family name to its member crops.
	CropFamilies  map[string][]string `yaml:"crop_families"`
	CropWildcards []string            `yaml:"crop_wildcards"`
	// SouthernRegions lists regions whose seasons are flipped.
	SouthernRegions []string `yaml:"southern_regions"`
	// CategoryHints maps issue terms to the category most likely to address them.
	CategoryHints map[domain.Category][]string `yaml:"category_hints"`
}

// DefaultPolicy returns the built-in tables.
func DefaultPolicy() Policy {
	return Policy{
		Baselines: map[domain.Category]float64{
			domain.CategoryPestControl:       25,
			domain.CategoryFertility:         15,
			domain.CategorySoilAmendment:     20,
			domain.CategoryGrowthEnhancement: 30,
		},
		MinSavings: 1,
		TimeToResult: map[domain.Category]string{
			domain.CategoryPestControl:       "3-5 days",
			domain.CategoryFertility:         "1-2 weeks",
			domain.CategorySoilAmendment:     "2-4 weeks",
			domain.CategoryGrowthEnhancement: "1-2 weeks",
		},
		UrgentTerms: []string{
			"armyworm", "locust", "outbreak", "infestation", "blight", "aphid",
			"borer", "rot", "wilt", "stem borer", "whitefly",
		},
		ModerateTerms: []string{
			"mildew", "deficiency", "yellowing", "leaf spot", "rust", "mite", "thrips",
			"stunted", "nematode",
		},
		CropFamilies: map[string][]string{
			"cereals":    {"maize", "corn", "wheat", "rice", "sorghum", "millet", "barley", "oats"},
			"solanaceae": {"tomato", "potato", "pepper", "chili", "eggplant", "aubergine"},
			"legumes":    {"beans", "bean", "cowpea", "pea", "peas", "soybean", "groundnut", "lentil"},
			"brassicas":  {"cabbage", "kale", "broccoli", "cauliflower", "mustard", "collards"},
			"cucurbits":  {"cucumber", "pumpkin", "squash", "melon", "watermelon", "zucchini"},
			"alliums":    {"onion", "garlic", "leek", "shallot"},
			"roots":      {"cassava", "sweet potato", "yam", "carrot", "beet"},
		},
		CropWildcards: []string{"all", "any", "*"},
		SouthernRegions: []string{
			"south africa", "australia", "new zealand", "argentina", "chile", "uruguay",
			"brazil", "zimbabwe", "zambia", "madagascar", "mozambique", "namibia",
			"botswana", "malawi", "lesotho", "eswatini",
		},
		CategoryHints: map[domain.Category][]string{
			domain.CategoryPestControl:       {"worm", "aphid", "pest", "beetle", "borer", "mite", "fly", "locust", "blight", "mildew", "rot", "thrips"},
			domain.CategoryFertility:         {"deficiency", "yellowing", "nitrogen", "phosphorus", "potassium", "pale"},
			domain.CategorySoilAmendment:     {"acidic", "compaction", "erosion", "salinity", "low ph", "drainage"},
			domain.CategoryGrowthEnhancement: {"stunted", "slow growth", "flowering", "fruit set", "germination"},
		},
	}
}

// LoadPolicy reads path and merges it over DefaultPolicy. A missing file keeps the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return p, fmt.Errorf("op=config.LoadPolicy: %w", err)
	}
	// #nosec G304 -- Configuration files are expected to be safe
	content, err := os.ReadFile(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("op=config.LoadPolicy: %w", err)
	}
	return ParsePolicy(content)
}

// ParsePolicy decodes YAML policy content over the defaults. Tables present in the
// document replace the default table as a whole; scalar overrides must be positive.
func ParsePolicy(content []byte) (Policy, error) {
	p := DefaultPolicy()
	var doc struct {
		Baselines       map[string]float64  `yaml:"baselines"`
		MinSavings      *float64            `yaml:"min_savings"`
		TimeToResult    map[string]string   `yaml:"time_to_result"`
		UrgentTerms     []string            `yaml:"urgent_terms"`
		ModerateTerms   []string            `yaml:"moderate_terms"`
		CropFamilies    map[string][]string `yaml:"crop_families"`
		CropWildcards   []string            `yaml:"crop_wildcards"`
		SouthernRegions []string            `yaml:"southern_regions"`
		CategoryHints   map[string][]string `yaml:"category_hints"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return p, fmt.Errorf("op=config.ParsePolicy: %w", err)
	}
	if len(doc.Baselines) > 0 {
		p.Baselines = make(map[domain.Category]float64, len(doc.Baselines))
		for k, v := range doc.Baselines {
			c, err := domain.ParseCategory(k)
			if err != nil {
				return p, fmt.Errorf("op=config.ParsePolicy: baselines: %w", err)
			}
			if v < 0 {
				return p, fmt.Errorf("op=config.ParsePolicy: baseline %s must be >= 0", k)
			}
			p.Baselines[c] = v
		}
	}
	if doc.MinSavings != nil {
		if *doc.MinSavings <= 0 {
			return p, fmt.Errorf("op=config.ParsePolicy: min_savings must be positive")
		}
		p.MinSavings = *doc.MinSavings
	}
	if len(doc.TimeToResult) > 0 {
		p.TimeToResult = make(map[domain.Category]string, len(doc.TimeToResult))
		for k, v := range doc.TimeToResult {
			c, err := domain.ParseCategory(k)
			if err != nil {
				return p, fmt.Errorf("op=config.ParsePolicy: time_to_result: %w", err)
			}
			p.TimeToResult[c] = strings.TrimSpace(v)
		}
	}
	if len(doc.UrgentTerms) > 0 {
		p.UrgentTerms = lowerAll(doc.UrgentTerms)
	}
	if len(doc.ModerateTerms) > 0 {
		p.ModerateTerms = lowerAll(doc.ModerateTerms)
	}
	if len(doc.CropFamilies) > 0 {
		p.CropFamilies = make(map[string][]string, len(doc.CropFamilies))
		for k, v := range doc.CropFamilies {
			p.CropFamilies[strings.ToLower(k)] = lowerAll(v)
		}
	}
	if len(doc.CropWildcards) > 0 {
		p.CropWildcards = lowerAll(doc.CropWildcards)
	}
	if len(doc.SouthernRegions) > 0 {
		p.SouthernRegions = lowerAll(doc.SouthernRegions)
	}
	if len(doc.CategoryHints) > 0 {
		p.CategoryHints = make(map[domain.Category][]string, len(doc.CategoryHints))
		for k, v := range doc.CategoryHints {
			c, err := domain.ParseCategory(k)
			if err != nil {
				return p, fmt.Errorf("op=config.ParsePolicy: category_hints: %w", err)
			}
			p.CategoryHints[c] = lowerAll(v)
		}
	}
	return p, nil
}

// Baseline returns the commercial baseline for c, or 0 when unknown.
func (p Policy) Baseline(c domain.Category) float64 { return p.Baselines[c] }

// DefaultTimeToResult returns the category fallback, or a generic estimate.
func (p Policy) DefaultTimeToResult(c domain.Category) string {
	if v, ok := p.TimeToResult[c]; ok && v != "" {
		return v
	}
	return "1-2 weeks"
}

// FamilyOf returns the family a crop belongs to, or "" when unlisted.
func (p Policy) FamilyOf(crop string) string {
	crop = strings.ToLower(strings.TrimSpace(crop))
	families := make([]string, 0, len(p.CropFamilies))
	for f := range p.CropFamilies {
		families = append(families, f)
	}
	sort.Strings(families)
	for _, family := range families {
		for _, m := range p.CropFamilies[family] {
			if m == crop {
				return family
			}
		}
	}
	return ""
}

// IsWildcardCrop reports whether crop matches any crop.
func (p Policy) IsWildcardCrop(crop string) bool {
	crop = strings.ToLower(strings.TrimSpace(crop))
	for _, w := range p.CropWildcards {
		if w == crop {
			return true
		}
	}
	return false
}

// IsSouthern reports whether region lies in the southern hemisphere.
func (p Policy) IsSouthern(region string) bool {
	region = strings.ToLower(strings.TrimSpace(region))
	for _, r := range p.SouthernRegions {
		if r == region {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
