package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/internal/domain/mocks"
	"github.com/fairyhunter13/organic-advisor/internal/engine"
)

const goodReply = "Here you go:\n```json\n" + `{
  "title": "Neem and ash dusting",
  "description": "Dust the whorls with neem powder mixed with wood ash.",
  "ingredients": [{"name": "neem powder", "quantity": 1, "unit": "kg"}, "wood ash"],
  "steps": ["Mix neem and ash", "Dust into the maize whorls early morning"],
  "urgency": "immediate",
  "estimated_cost_savings": "18.5",
  "organic_compliance": 100,
  "estimated_time_to_result": "2-3 days"
}` + "\n```"

func newEnricher(client domain.EnrichmentClient) engine.Enricher {
	return engine.Enricher{Client: client, Enabled: true, Timeout: 200 * time.Millisecond, Policy: config.DefaultPolicy()}
}

func TestEnricher_Success(t *testing.T) {
	client := mocks.NewMockEnrichmentClient(t)
	client.On("Generate", mock.Anything, mock.AnythingOfType("string")).Return(goodReply, nil).Once()

	u := maizeContext()
	u.AvailableMaterials = []string{"wood ash"}
	out := newEnricher(client).Attempt(context.Background(), u, domain.CategoryPestControl, testNow)

	require.True(t, out.Succeeded())
	assert.Equal(t, []engine.EnrichmentState{engine.StateAttempt, engine.StateSuccess}, out.Path)
	assert.NoError(t, out.Err)
	a := out.Action
	assert.Equal(t, "Neem and ash dusting", a.Title)
	assert.Equal(t, domain.SourceEnrichment, a.Source)
	assert.Empty(t, a.SourceCandidateID)
	assert.Equal(t, domain.UrgencyImmediate, a.Urgency)
	assert.Equal(t, 18.5, a.EstimatedCostSavings)
	assert.Equal(t, "2-3 days", a.EstimatedTimeToResult)
	assert.Equal(t, domain.CategoryPestControl, a.Category)
	require.Len(t, a.Ingredients, 2)
	assert.True(t, a.Ingredients[1].FromAvailable)
	assert.NotEmpty(t, a.ID)
}

func TestEnricher_Timeout(t *testing.T) {
	client := mocks.NewMockEnrichmentClient(t)
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded).Once()

	e := newEnricher(client)
	e.Timeout = 20 * time.Millisecond
	out := e.Attempt(context.Background(), maizeContext(), "", testNow)

	assert.Equal(t, engine.StateTimeout, out.State())
	assert.Equal(t, []engine.EnrichmentState{engine.StateAttempt, engine.StateTimeout, engine.StateFallback}, out.Path)
	assert.ErrorIs(t, out.Err, domain.ErrEnrichment)
	assert.Nil(t, out.Action)
}

func TestEnricher_Failures(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		err    error
		reason string
	}{
		{"upstream error", "", errors.New("503"), engine.ReasonUpstream},
		{"circuit open", "", domain.ErrCircuitOpen, engine.ReasonCircuitOpen},
		{"prose only", "I cannot help with that.", nil, engine.ReasonMalformed},
		{"missing title", `{"steps":["a"]}`, nil, engine.ReasonMalformed},
		{"blank title", `{"title":"  ","steps":["a"]}`, nil, engine.ReasonMalformed},
		{"missing steps", `{"title":"x"}`, nil, engine.ReasonMalformed},
		{"steps wrong type", `{"title":"x","steps":[1,2]}`, nil, engine.ReasonMalformed},
		{"truncated", `{"title":"x","steps":["a"`, nil, engine.ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockEnrichmentClient(t)
			client.On("Generate", mock.Anything, mock.Anything).Return(tt.reply, tt.err).Once()

			out := newEnricher(client).Attempt(context.Background(), maizeContext(), "", testNow)
			assert.Equal(t, engine.StateFailure, out.State())
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, engine.StateFallback, out.Path[len(out.Path)-1])
			assert.ErrorIs(t, out.Err, domain.ErrEnrichment)
			assert.False(t, out.Succeeded())
		})
	}
}

func TestEnricher_DisabledSkipsClient(t *testing.T) {
	client := mocks.NewMockEnrichmentClient(t)
	e := newEnricher(client)
	e.Enabled = false

	out := e.Attempt(context.Background(), maizeContext(), "", testNow)
	assert.Equal(t, engine.ReasonDisabled, out.Reason)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestEnricher_PanicRecovered(t *testing.T) {
	client := mocks.NewMockEnrichmentClient(t)
	client.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") }).Return("", nil).Once()

	out := newEnricher(client).Attempt(context.Background(), maizeContext(), "", testNow)
	assert.Equal(t, engine.ReasonPanic, out.Reason)
	assert.Equal(t, engine.StateFailure, out.State())
}

func TestParseEnrichment_Defaults(t *testing.T) {
	p := config.DefaultPolicy()
	a, err := engine.ParseEnrichment(`{"title":"Compost tea","steps":"Brew for 24h","urgency":"asap","organic_compliance":"lots","estimated_cost_savings":-4}`,
		maizeContext(), domain.CategoryFertility, p, testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyThisWeek, a.Urgency)
	assert.Equal(t, 100.0, a.OrganicCompliance)
	assert.Equal(t, 0.0, a.EstimatedCostSavings)
	assert.Equal(t, "1-2 weeks", a.EstimatedTimeToResult)
	assert.Equal(t, domain.CategoryFertility, a.Category)
	assert.Equal(t, []string{"Brew for 24h"}, a.Steps)
	assert.Empty(t, a.Ingredients)

	a, err = engine.ParseEnrichment(`{"title":"x","steps":["a"],"organic_compliance":250,"category":"soil"}`, maizeContext(), "", p, testNow)
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.OrganicCompliance)
	assert.Equal(t, domain.CategorySoilAmendment, a.Category)
}

func TestContextSummary_NoUserID(t *testing.T) {
	u := maizeContext()
	s, err := engine.ContextSummary(u, domain.CategoryPestControl)
	require.NoError(t, err)
	assert.NotContains(t, s, u.UserID)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	assert.Equal(t, "pest-control", m["category_hint"])
	assert.Equal(t, "summer", m["season"])
}

func TestCategoryHint(t *testing.T) {
	p := config.DefaultPolicy()
	assert.Equal(t, domain.CategoryPestControl, engine.CategoryHint([]string{"fall armyworm"}, p))
	assert.Equal(t, domain.CategoryFertility, engine.CategoryHint([]string{"leaf yellowing", "nitrogen deficiency"}, p))
	assert.Equal(t, domain.Category(""), engine.CategoryHint([]string{"unknown thing"}, p))
	assert.Equal(t, domain.Category(""), engine.CategoryHint(nil, p))
}
