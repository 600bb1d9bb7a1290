package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/graphstore"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/logger"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/progress"
)

// Config is what a run needs besides the store.
type Config struct {
	MetaPath      string
	ReviewsPath   string
	ProgressEvery int
	// CountLines sizes progress reporting; nil uses progress.CountLines.
	CountLines LineCounter
}

// Load runs the standard pipeline against store.
func Load(ctx context.Context, store graphstore.Store, log *logger.Logger, cfg Config) (Summary, error) {
	return LoadWith(ctx, Standard(), store, log, cfg)
}

// LoadWith runs p against store, creating the schema constraints first.
func LoadWith(ctx context.Context, p *Pipeline, store graphstore.Store, log *logger.Logger, cfg Config) (Summary, error) {
	runID := uuid.NewString()
	log = log.With("run_id", runID)

	counter := cfg.CountLines
	if counter == nil {
		counter = progress.CountLines
	}
	st := &State{
		Store:         store,
		Log:           log,
		MetaPath:      cfg.MetaPath,
		ReviewsPath:   cfg.ReviewsPath,
		ProgressEvery: cfg.ProgressEvery,
		CountLines:    counter,
		Summary:       Summary{RunID: runID},
	}

	start := time.Now()
	log.Info("load started", "meta", cfg.MetaPath, "reviews", cfg.ReviewsPath)

	if err := store.EnsureSchema(ctx); err != nil {
		return st.Summary, fmt.Errorf("ensure schema: %w", err)
	}
	if err := p.Run(ctx, st); err != nil {
		log.Error("load failed", "error", err)
		return st.Summary, err
	}

	log.Info("load finished",
		"books", st.Summary.Books,
		"edges_merged", st.Summary.EdgesMerged,
		"edges_skipped", st.Summary.EdgesSkipped,
		"reviews", st.Summary.Reviews,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return st.Summary, nil
}
