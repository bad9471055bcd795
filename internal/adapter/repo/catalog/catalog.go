// Package catalog reads the YAML catalog and demo profiles used by the memory backend
// and the seeder.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Catalog is the decoded content of a catalog file.
type Catalog struct {
	Candidates []domain.Candidate
	Profiles   []domain.RawProfile
}

type ingredientYAML struct {
	Name     string  `yaml:"name"`
	Quantity float64 `yaml:"quantity"`
	Unit     string  `yaml:"unit"`
}

type candidateYAML struct {
	ID                string           `yaml:"id"`
	Name              string           `yaml:"name"`
	Description       string           `yaml:"description"`
	Category          string           `yaml:"category"`
	TargetCrops       []string         `yaml:"target_crops"`
	TargetIssues      []string         `yaml:"target_issues"`
	Ingredients       []ingredientYAML `yaml:"ingredients"`
	Steps             []string         `yaml:"steps"`
	Effectiveness     float64          `yaml:"effectiveness"`
	CostPerUnit       float64          `yaml:"cost_per_unit"`
	OrganicCompliance float64          `yaml:"organic_compliance"`
	Seasons           []string         `yaml:"seasons"`
	Verified          bool             `yaml:"verified"`
	TimeToResult      string           `yaml:"time_to_result"`
}

type fieldYAML struct {
	Crop   string   `yaml:"crop"`
	Issues []string `yaml:"issues"`
	SizeHa float64  `yaml:"size_ha"`
}

type profileYAML struct {
	UserID    string      `yaml:"user_id"`
	Region    string      `yaml:"region"`
	Crops     []string    `yaml:"crops"`
	Issues    []string    `yaml:"issues"`
	FarmSize  float64     `yaml:"farm_size"`
	Materials []string    `yaml:"materials"`
	Fields    []fieldYAML `yaml:"fields"`
}

type fileYAML struct {
	Candidates []candidateYAML `yaml:"candidates"`
	Profiles   []profileYAML   `yaml:"profiles"`
}

// Load reads and parses the catalog at path.
func Load(path string) (Catalog, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("op=catalog.Load: %w", err)
	}
	// #nosec G304 -- catalog path comes from configuration
	content, err := os.ReadFile(absPath)
	if err != nil {
		return Catalog{}, fmt.Errorf("op=catalog.Load: %w", err)
	}
	return Parse(content)
}

// Parse decodes catalog YAML. Unknown keys, unknown categories and duplicate IDs are
// rejected; numeric fields are clamped by Candidate.Normalize.
func Parse(content []byte) (Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var doc fileYAML
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("op=catalog.Parse: %w", err)
	}

	var out Catalog
	seen := make(map[string]struct{}, len(doc.Candidates))
	for i, cy := range doc.Candidates {
		id := strings.TrimSpace(cy.ID)
		if id == "" || strings.TrimSpace(cy.Name) == "" {
			return Catalog{}, fmt.Errorf("op=catalog.Parse: candidate %d: %w: id and name are required", i, domain.ErrInvalidArgument)
		}
		if _, dup := seen[id]; dup {
			return Catalog{}, fmt.Errorf("op=catalog.Parse: %w: duplicate candidate id %q", domain.ErrInvalidArgument, id)
		}
		seen[id] = struct{}{}
		cat, err := domain.ParseCategory(cy.Category)
		if err != nil {
			return Catalog{}, fmt.Errorf("op=catalog.Parse: candidate %s: %w", id, err)
		}
		c := domain.Candidate{
			ID:                id,
			Name:              cy.Name,
			Description:       strings.TrimSpace(cy.Description),
			Category:          cat,
			TargetCrops:       cy.TargetCrops,
			TargetIssues:      cy.TargetIssues,
			Steps:             cy.Steps,
			Effectiveness:     cy.Effectiveness,
			CostPerUnit:       cy.CostPerUnit,
			OrganicCompliance: cy.OrganicCompliance,
			Verified:          cy.Verified,
			TimeToResult:      cy.TimeToResult,
		}
		for _, in := range cy.Ingredients {
			c.Ingredients = append(c.Ingredients, domain.Ingredient{Name: in.Name, Quantity: in.Quantity, Unit: in.Unit})
		}
		for _, s := range cy.Seasons {
			season, ok := domain.ParseSeason(s)
			if !ok {
				return Catalog{}, fmt.Errorf("op=catalog.Parse: candidate %s: %w: unknown season %q", id, domain.ErrInvalidArgument, s)
			}
			c.Seasons = append(c.Seasons, season)
		}
		out.Candidates = append(out.Candidates, c.Normalize())
	}

	for i, py := range doc.Profiles {
		if strings.TrimSpace(py.UserID) == "" {
			return Catalog{}, fmt.Errorf("op=catalog.Parse: profile %d: %w: user_id is required", i, domain.ErrInvalidArgument)
		}
		p := domain.RawProfile{
			UserID:    strings.TrimSpace(py.UserID),
			Region:    py.Region,
			Crops:     py.Crops,
			Issues:    py.Issues,
			FarmSize:  py.FarmSize,
			Materials: py.Materials,
		}
		for _, f := range py.Fields {
			p.Fields = append(p.Fields, domain.RawField{Crop: f.Crop, Issues: f.Issues, SizeHa: f.SizeHa})
		}
		out.Profiles = append(out.Profiles, p)
	}
	return out, nil
}
