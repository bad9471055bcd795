package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

var (
	_ domain.CandidateRepository = (*Store)(nil)
	_ domain.ActionRepository    = (*Store)(nil)
	_ domain.RatingRepository    = (*Store)(nil)
	_ domain.ProfileRepository   = (*Store)(nil)
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore([]string{"all", "any", "*"})
	ctx := context.Background()
	for _, c := range []domain.Candidate{
		{ID: "neem", Name: "Neem", Category: domain.CategoryPestControl, TargetCrops: []string{"Maize"}, Seasons: []domain.Season{domain.SeasonSummer}, Verified: true},
		{ID: "compost", Name: "Compost", Category: domain.CategoryFertility, TargetCrops: []string{"all"}, Verified: true},
		{ID: "ash", Name: "Ash", Category: domain.CategorySoilAmendment, TargetCrops: []string{"beans"}, Seasons: []domain.Season{domain.SeasonWinter}, Verified: true},
		{ID: "draft", Name: "Draft", Category: domain.CategoryPestControl, TargetCrops: []string{"maize"}},
	} {
		require.NoError(t, s.UpsertCandidate(ctx, c))
	}
	return s
}

func ids(cs []domain.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestFetchCandidates_Filters(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	got, err := s.FetchCandidates(ctx, domain.CandidateFilter{VerifiedOnly: true, Crop: "maize", Season: domain.SeasonSummer})
	require.NoError(t, err)
	assert.Equal(t, []string{"compost", "neem"}, ids(got), "wildcard crops and year-round seasons match")

	got, err = s.FetchCandidates(ctx, domain.CandidateFilter{VerifiedOnly: true, Season: domain.SeasonWinter})
	require.NoError(t, err)
	assert.Equal(t, []string{"ash", "compost"}, ids(got))

	got, err = s.FetchCandidates(ctx, domain.CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ash", "compost", "draft", "neem"}, ids(got))

	got, err = s.FetchCandidates(ctx, domain.CandidateFilter{VerifiedOnly: true, Category: domain.CategoryFertility})
	require.NoError(t, err)
	assert.Equal(t, []string{"compost"}, ids(got))
}

func TestUpsertCandidate_CanonicalizesCategoryAlias(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	require.NoError(t, s.UpsertCandidate(ctx, domain.Candidate{ID: "neem", Name: "Neem", Category: "Pesticide", Verified: true}))

	c, err := s.GetCandidate(ctx, "neem")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryPestControl, c.Category)

	got, err := s.FetchCandidates(ctx, domain.CandidateFilter{Category: "pest"})
	require.NoError(t, err)
	assert.Equal(t, []string{"neem"}, ids(got))
}

func TestFetchCandidates_CancelledContext(t *testing.T) {
	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.FetchCandidates(ctx, domain.CandidateFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpsertCandidate_Validates(t *testing.T) {
	s := NewStore(nil)
	err := s.UpsertCandidate(context.Background(), domain.Candidate{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = s.UpsertCandidate(context.Background(), domain.Candidate{ID: "x", Name: "x", Category: "snake-oil"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.GetCandidate(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActions_Lifecycle(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	a := domain.ActionInstance{ID: "a1", Title: "first", Source: domain.SourceCatalog, SourceCandidateID: "neem"}
	require.NoError(t, s.SaveActionInstance(ctx, "u1", a))

	dup := a
	dup.Title = "second"
	require.NoError(t, s.SaveActionInstance(ctx, "u1", dup))
	got, err := s.GetAction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title, "re-saving an ID keeps the original")
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, s.MarkCompleted(ctx, "a1", domain.Feedback{Rating: 4, Notes: "worked"}))
	fb, done := s.Completion("a1")
	assert.True(t, done)
	assert.Equal(t, 4, fb.Rating)

	assert.ErrorIs(t, s.MarkCompleted(ctx, "nope", domain.Feedback{}), domain.ErrNotFound)
	_, err = s.GetAction(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.SaveActionInstance(ctx, "u1", domain.ActionInstance{}), domain.ErrInvalidArgument)
}

func TestSaveActionInstance_CancelledIsWriteFailure(t *testing.T) {
	s := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SaveActionInstance(ctx, "u1", domain.ActionInstance{ID: "a"})
	assert.ErrorIs(t, err, domain.ErrRepositoryWrite)
}

func TestRateCandidate(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.RateCandidate(ctx, "neem", "u1", 3))
	require.NoError(t, s.RateCandidate(ctx, "neem", "u1", 5))
	v, ok := s.Rating("neem", "u1")
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	assert.ErrorIs(t, s.RateCandidate(ctx, "ghost", "u1", 3), domain.ErrNotFound)
}

func TestLoadProfile_HistoryFromActions(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertProfile(ctx, domain.RawProfile{UserID: "u1", Region: "kenya", Crops: []string{"maize"}}))

	base := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveActionInstance(ctx, "u1", domain.ActionInstance{ID: "a1", SourceCandidateID: "neem", Source: domain.SourceCatalog, GeneratedAt: base}))
	require.NoError(t, s.SaveActionInstance(ctx, "u1", domain.ActionInstance{ID: "a2", SourceCandidateID: "compost", Source: domain.SourceCatalog, GeneratedAt: base.Add(24 * time.Hour)}))
	require.NoError(t, s.SaveActionInstance(ctx, "u1", domain.ActionInstance{ID: "a3", Source: domain.SourceEnrichment, GeneratedAt: base.Add(48 * time.Hour)}))
	require.NoError(t, s.SaveActionInstance(ctx, "u2", domain.ActionInstance{ID: "a4", SourceCandidateID: "ash", Source: domain.SourceCatalog, GeneratedAt: base}))

	p, err := s.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "kenya", p.Region)
	require.Len(t, p.History, 2)
	assert.Equal(t, "compost", p.History[0].CandidateID)
	assert.Equal(t, "neem", p.History[1].CandidateID)

	s.HistoryLimit = 1
	p, err = s.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.History, 1)
}

func TestLoadProfile_Unknown(t *testing.T) {
	s := NewStore(nil)
	p, err := s.LoadProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "ghost", p.UserID)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SaveActionInstance(ctx, "u1", domain.ActionInstance{ID: string(rune('a' + i)), SourceCandidateID: "neem"})
			_, _ = s.FetchCandidates(ctx, domain.CandidateFilter{VerifiedOnly: true})
			_, _ = s.LoadProfile(ctx, "u1")
		}(i)
	}
	wg.Wait()
	p, _ := s.LoadProfile(ctx, "u1")
	assert.Len(t, p.History, 20)
}

func TestNewFromFile(t *testing.T) {
	doc := `
candidates:
  - {id: neem, name: Neem, category: pesticide, target_crops: [maize], verified: true}
profiles:
  - {user_id: demo, region: kenya, crops: [maize]}
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := NewFromFile(context.Background(), path, nil)
	require.NoError(t, err)
	c, err := s.GetCandidate(context.Background(), "neem")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryPestControl, c.Category)
	p, err := s.LoadProfile(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"maize"}, p.Crops)

	_, err = NewFromFile(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), nil)
	assert.Error(t, err)
}
