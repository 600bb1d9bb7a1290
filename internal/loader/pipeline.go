// Package loader moves the dataset into the graph in three ordered stages:
// books, then the related-product edges between them, then users and their
// reviews.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/graphstore"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/logger"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/progress"
)

var (
	// ErrPreconditionUnmet is returned when a stage runs before a stage it requires.
	ErrPreconditionUnmet = errors.New("stage precondition unmet")
	// ErrSourceMissing is returned when a book with related products is not in the graph.
	ErrSourceMissing = errors.New("source book missing")
)

// Stage is one step of a load.
type Stage interface {
	Name() string
	// Requires names the stages that must have completed earlier in the same run.
	Requires() []string
	Run(ctx context.Context, st *State) error
}

// LineCounter sizes progress reporting for a record file.
type LineCounter func(ctx context.Context, path string) int

// State is what the stages of one run share.
type State struct {
	Store         graphstore.Store
	Log           *logger.Logger
	MetaPath      string
	ReviewsPath   string
	ProgressEvery int
	CountLines    LineCounter

	// RelatedTargets is tallied by the books stage to size the related stage's progress.
	RelatedTargets int

	Summary Summary
}

// Summary reports what a run did.
type Summary struct {
	RunID          string `json:"run_id"`
	Books          int    `json:"books"`
	RelatedTargets int    `json:"related_targets"`
	EdgesMerged    int    `json:"edges_merged"`
	EdgesSkipped   int    `json:"edges_skipped"`
	Reviews        int    `json:"reviews"`
}

func (st *State) bar(name string, total int) *progress.Bar {
	return progress.New(st.Log, name, total, st.ProgressEvery)
}

func (st *State) lines(ctx context.Context, path string) int {
	if st.CountLines == nil {
		return progress.Unknown
	}
	return st.CountLines(ctx, path)
}

// Pipeline runs stages strictly in order, stopping at the first failure.
type Pipeline struct {
	stages []Stage
}

// NewPipeline returns a pipeline of stages in the given order.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Standard is the books, related, reviews pipeline.
func Standard() *Pipeline {
	return NewPipeline(BookStage{}, RelatedStage{}, ReviewStage{})
}

// Run executes every stage. A stage whose requirement has not completed fails
// with ErrPreconditionUnmet before touching the store.
func (p *Pipeline) Run(ctx context.Context, st *State) error {
	done := make(map[string]bool, len(p.stages))
	for _, s := range p.stages {
		for _, req := range s.Requires() {
			if !done[req] {
				return fmt.Errorf("%w: %s requires %s", ErrPreconditionUnmet, s.Name(), req)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Run(ctx, st); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		done[s.Name()] = true
	}
	return nil
}
