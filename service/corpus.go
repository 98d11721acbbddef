package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sublatesublate-design/legal-database/logger"
	"github.com/sublatesublate-design/legal-database/repository"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"

	"golang.org/x/sync/errgroup"
)

const loadConcurrency = 4

// LoadCorpus rebuilds the search index and the resolver tables from the
// store. It runs once at startup before any tool call is served.
func LoadCorpus(ctx context.Context, store repository.Store, engine *search.Engine, res *resolver.Resolver, log *logger.Logger) (int, error) {
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()

	laws, err := store.ListLaws(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list laws: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i := range laws {
		id := laws[i].ID
		g.Go(func() error {
			law, err := store.GetLaw(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to load law %s: %w", id, err)
			}
			articles, err := store.GetArticles(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to load articles of %s: %w", id, err)
			}
			engine.IndexLaw(law, articles)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := res.Load(ctx); err != nil {
		return 0, err
	}

	_, articles := engine.Stats()
	log.Info().
		Int("laws", len(laws)).
		Int("articles", articles).
		Dur("duration_ms", time.Since(start)).
		Msg("corpus loaded")
	return len(laws), nil
}
