package engine_test

import (
	"time"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

var testNow = time.Date(2025, time.July, 14, 9, 30, 0, 0, time.UTC)

func maizeSpray() domain.Candidate {
	return domain.Candidate{
		ID:                "cand-maize-spray",
		Name:              "Garlic-chili maize spray",
		Description:       "Crushed garlic and chili steeped in soapy water.",
		Category:          domain.CategoryPestControl,
		TargetCrops:       []string{"maize"},
		TargetIssues:      []string{"armyworm", "fall armyworm"},
		Ingredients:       []domain.Ingredient{{Name: "garlic", Quantity: 0.5, Unit: "kg"}, {Name: "chili", Quantity: 0.2, Unit: "kg"}, {Name: "liquid soap", Quantity: 50, Unit: "ml"}},
		Steps:             []string{"Crush garlic and chili", "Steep overnight in 10 l water", "Strain, add soap, spray at dusk"},
		Effectiveness:     4.5,
		CostPerUnit:       3.5,
		OrganicCompliance: 100,
		Seasons:           []domain.Season{domain.SeasonSummer, domain.SeasonSpring},
		Verified:          true,
	}
}

func tomatoBlightSpray() domain.Candidate {
	return domain.Candidate{
		ID:                "cand-tomato-blight",
		Name:              "Tomato blight spray",
		Category:          domain.CategoryPestControl,
		TargetCrops:       []string{"tomato"},
		TargetIssues:      []string{"blight"},
		Steps:             []string{"Spray weekly"},
		Effectiveness:     4,
		CostPerUnit:       5,
		OrganicCompliance: 90,
		Verified:          true,
	}
}

func maizeContext() domain.UserContext {
	return domain.UserContext{
		UserID: "farmer-1",
		Crops:  []string{"maize"},
		Issues: []string{"armyworm"},
		Region: "Kenya",
		Season: domain.SeasonSummer,
		Date:   testNow,
	}
}
