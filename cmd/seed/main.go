// Command seed migrates the database and loads the YAML catalog and demo profiles into it.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/observability"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/repo/catalog"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/organic-advisor/internal/config"
)

type repoWriter struct {
	*postgres.CandidateRepo
	*postgres.ProfileRepo
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	path := flag.String("catalog", cfg.CatalogPath, "path to the catalog YAML")
	skipMigrate := flag.Bool("skip-migrate", false, "do not run migrations first")
	flag.Parse()

	ctx := context.Background()
	if !*skipMigrate {
		if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
			slog.Error("migration failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		slog.Error("policy load failed", slog.Any("error", err))
		os.Exit(1)
	}
	c, err := catalog.Load(*path)
	if err != nil {
		slog.Error("catalog load failed", slog.String("path", *path), slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	st, err := catalog.Seed(ctx, repoWriter{
		CandidateRepo: postgres.NewCandidateRepo(pool, policy.CropWildcards),
		ProfileRepo:   postgres.NewProfileRepo(pool),
	}, c)
	if err != nil {
		slog.Error("seed failed", slog.Int("candidates_written", st.Candidates), slog.Any("error", err))
		pool.Close()
		os.Exit(1)
	}
	slog.Info("catalog seeded", slog.Int("candidates", st.Candidates), slog.Int("profiles", st.Profiles))
}
