package memory

import (
	"context"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/repo/catalog"
)

// NewFromFile builds a Store seeded from the catalog at path.
func NewFromFile(ctx context.Context, path string, wildcards []string) (*Store, error) {
	c, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(wildcards)
	if _, err := catalog.Seed(ctx, s, c); err != nil {
		return nil, err
	}
	return s, nil
}
