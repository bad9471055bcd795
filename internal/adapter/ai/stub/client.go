// Package stub provides a deterministic enrichment client for local runs without an API key.
package stub

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Client answers every request with a canned action shaped by the context summary.
type Client struct{}

// New constructs a stub client.
func New() *Client { return &Client{} }

type summary struct {
	Crops        []string `json:"crops"`
	Issues       []string `json:"issues"`
	Materials    []string `json:"available_materials"`
	CategoryHint string   `json:"category_hint"`
}

// Generate returns a JSON reply in the same shape a real model is asked for.
func (c *Client) Generate(_ domain.Context, contextSummary string) (string, error) {
	var s summary
	if err := json.Unmarshal([]byte(contextSummary), &s); err != nil {
		return "", fmt.Errorf("op=stub.Generate: %w", err)
	}
	crop := "crops"
	if len(s.Crops) > 0 {
		crop = s.Crops[0]
	}
	target := "general plant health"
	if len(s.Issues) > 0 {
		target = strings.Join(s.Issues, " and ")
	}
	category := s.CategoryHint
	if category == "" {
		category = string(domain.CategoryGrowthEnhancement)
	}
	base := "compost"
	if len(s.Materials) > 0 {
		base = s.Materials[0]
	}

	payload := map[string]any{
		"title":       fmt.Sprintf("%s tea for %s", strings.ToUpper(base[:1])+base[1:], crop),
		"description": fmt.Sprintf("A low-cost brew from %s to address %s.", base, target),
		"category":    category,
		"ingredients": []map[string]any{
			{"name": base, "quantity": 1, "unit": "kg"},
			{"name": "water", "quantity": 10, "unit": "l"},
		},
		"steps": []string{
			fmt.Sprintf("Soak the %s in water for 48 hours.", base),
			"Strain and dilute 1:5.",
			fmt.Sprintf("Apply to the %s in the early morning.", crop),
		},
		"urgency":                  "this_week",
		"estimated_cost_savings":   10,
		"estimated_time_to_result": "1-2 weeks",
		"organic_compliance":       100,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=stub.Generate: %w", err)
	}
	return string(b), nil
}
