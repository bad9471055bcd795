package engine_test

import (
	"context"
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

func filterFor(tier string, u domain.UserContext) domain.CandidateFilter {
	for _, t := range engine.Tiers(u) {
		if t.Name == tier {
			return t.Filter
		}
	}
	panic("unknown tier " + tier)
}

func TestTiers_Order(t *testing.T) {
	u := maizeContext()
	tiers := engine.Tiers(u)
	require.Len(t, tiers, 3)
	assert.Equal(t, domain.CandidateFilter{VerifiedOnly: true, Crop: "maize", Season: domain.SeasonSummer}, tiers[0].Filter)
	assert.Equal(t, domain.CandidateFilter{VerifiedOnly: true, Season: domain.SeasonSummer}, tiers[1].Filter)
	assert.Equal(t, domain.CandidateFilter{VerifiedOnly: true}, tiers[2].Filter)
}

func TestRetrieve_FirstTierHit(t *testing.T) {
	repo := mocks.NewMockCandidateRepository(t)
	u := maizeContext()
	repo.On("FetchCandidates", mock.Anything, filterFor(engine.TierCropSeason, u)).
		Return([]domain.Candidate{maizeSpray()}, nil).Once()

	r := engine.Retriever{Repo: repo, Policy: config.DefaultPolicy(), FetchTimeout: time.Second}
	res, err := r.Retrieve(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, engine.TierCropSeason, res.Tier)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Candidates, 1)
}

func TestRetrieve_RelaxesThroughTiers(t *testing.T) {
	repo := mocks.NewMockCandidateRepository(t)
	u := maizeContext()
	winterOnly := tomatoBlightSpray()
	winterOnly.Seasons = []domain.Season{domain.SeasonWinter}

	repo.On("FetchCandidates", mock.Anything, filterFor(engine.TierCropSeason, u)).Return(nil, nil).Once()
	// an adapter that ignores the season filter must not leak out-of-season candidates
	repo.On("FetchCandidates", mock.Anything, filterFor(engine.TierSeason, u)).Return([]domain.Candidate{winterOnly}, nil).Once()
	repo.On("FetchCandidates", mock.Anything, filterFor(engine.TierVerified, u)).Return([]domain.Candidate{winterOnly}, nil).Once()

	r := engine.Retriever{Repo: repo, Policy: config.DefaultPolicy()}
	res, err := r.Retrieve(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, engine.TierVerified, res.Tier)
	assert.Equal(t, 3, res.Attempts)
}

func TestRetrieve_ErroringTierTreatedAsEmpty(t *testing.T) {
	repo := mocks.NewMockCandidateRepository(t)
	u := maizeContext()
	repo.On("FetchCandidates", mock.Anything, filterFor(engine.TierCropSeason, u)).Return(nil, errors.New("boom")).Once()
	repo.On("FetchCandidates", mock.Anything, filterFor(engine.TierSeason, u)).Return([]domain.Candidate{maizeSpray()}, nil).Once()

	r := engine.Retriever{Repo: repo, Policy: config.DefaultPolicy()}
	res, err := r.Retrieve(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, engine.TierSeason, res.Tier)
}

func TestRetrieve_NoCandidates(t *testing.T) {
	repo := mocks.NewMockCandidateRepository(t)
	unverified := maizeSpray()
	unverified.Verified = false
	repo.On("FetchCandidates", mock.Anything, mock.Anything).Return([]domain.Candidate{unverified}, nil).Times(3)

	r := engine.Retriever{Repo: repo, Policy: config.DefaultPolicy()}
	_, err := r.Retrieve(context.Background(), maizeContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoCandidates)
	assert.Contains(t, err.Error(), domain.NoCandidatesReason)
}

func TestRetrieve_AllTiersFail(t *testing.T) {
	repo := mocks.NewMockCandidateRepository(t)
	repo.On("FetchCandidates", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded).Times(3)

	r := engine.Retriever{Repo: repo, Policy: config.DefaultPolicy()}
	_, err := r.Retrieve(context.Background(), maizeContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	assert.NotErrorIs(t, err, domain.ErrNoCandidates)
}

func TestRetrieve_FetchTimeoutApplied(t *testing.T) {
	repo := mocks.NewMockCandidateRepository(t)
	repo.On("FetchCandidates", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return([]domain.Candidate{maizeSpray()}, nil).Once()

	r := engine.Retriever{Repo: repo, Policy: config.DefaultPolicy(), FetchTimeout: 50 * time.Millisecond}
	_, err := r.Retrieve(context.Background(), maizeContext())
	require.NoError(t, err)
}

func TestHardFilter(t *testing.T) {
	r := engine.Retriever{Policy: config.DefaultPolicy()}
	wild := tomatoBlightSpray()
	wild.ID = "wild"
	wild.TargetCrops = []string{"ALL"}
	unverified := maizeSpray()
	unverified.ID = "unverified"
	unverified.Verified = false
	winter := maizeSpray()
	winter.ID = "winter"
	winter.Seasons = []domain.Season{domain.SeasonWinter}
	noID := maizeSpray()
	noID.ID = " "

	in := []domain.Candidate{maizeSpray(), tomatoBlightSpray(), wild, unverified, winter, noID}
	got := r.HardFilter(in, domain.CandidateFilter{VerifiedOnly: true, Crop: "maize", Season: domain.SeasonSummer})
	var gotIDs []string
	for _, c := range got {
		gotIDs = append(gotIDs, c.ID)
	}
	assert.Equal(t, []string{"cand-maize-spray", "wild"}, gotIDs)

	got = r.HardFilter(in, domain.CandidateFilter{VerifiedOnly: true, Category: domain.CategoryFertility})
	assert.Empty(t, got)
}
