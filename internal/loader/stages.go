package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/graphstore"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/record"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/models"
)

// BookStage merges one Book per metadata record, all in one transaction.
type BookStage struct{}

func (BookStage) Name() string       { return "books" }
func (BookStage) Requires() []string { return nil }

func (s BookStage) Run(ctx context.Context, st *State) error {
	bar := st.bar(s.Name(), st.lines(ctx, st.MetaPath))

	var books, targets int
	err := st.Store.Transact(ctx, func(tx graphstore.Tx) error {
		books, targets = 0, 0
		return record.ForEach(st.MetaPath, func(rec record.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			book, err := bookFrom(rec)
			if err != nil {
				return err
			}
			if err := tx.MergeBook(ctx, book); err != nil {
				return fmt.Errorf("merge book %s: %w", book.ID, err)
			}
			books++

			rels, err := rec.Relations("related")
			if err != nil {
				return fmt.Errorf("book %s: %w", book.ID, err)
			}
			targets += record.CountTargets(rels)
			bar.Next()
			return nil
		})
	})
	if err != nil {
		return err
	}
	st.RelatedTargets = targets
	st.Summary.Books += books
	st.Summary.RelatedTargets = targets
	bar.Finish()
	return nil
}

func bookFrom(rec record.Record) (*models.Book, error) {
	id, err := rec.String("asin")
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("metadata record without asin")
	}
	return models.NewBook(id, rec.Get("price"), rec.Get("description")), nil
}

// RelatedStage merges the related-product edges between books already in the
// graph, all in one transaction. Targets missing from the graph are skipped.
type RelatedStage struct{}

func (RelatedStage) Name() string       { return "related" }
func (RelatedStage) Requires() []string { return []string{"books"} }

func (s RelatedStage) Run(ctx context.Context, st *State) error {
	bar := st.bar(s.Name(), st.RelatedTargets)

	var tally edgeTally
	err := st.Store.Transact(ctx, func(tx graphstore.Tx) error {
		tally = edgeTally{}
		return record.ForEach(st.MetaPath, func(rec record.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rels, err := rec.Relations("related")
			if err != nil {
				return err
			}
			if record.CountTargets(rels) == 0 {
				return nil
			}

			id, err := rec.String("asin")
			if err != nil {
				return err
			}
			source, err := tx.FindBook(ctx, id)
			if errors.Is(err, graphstore.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrSourceMissing, id)
			}
			if err != nil {
				return fmt.Errorf("find book %s: %w", id, err)
			}

			for _, rel := range rels {
				if err := mergeRelated(ctx, tx, source, rel, &tally, bar.Next); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	st.Summary.EdgesMerged += tally.merged
	st.Summary.EdgesSkipped += tally.skipped
	bar.Finish()
	return nil
}

// edgeTally counts a related stage's edges until its transaction commits.
type edgeTally struct {
	merged, skipped int
}

func mergeRelated(ctx context.Context, tx graphstore.Tx, source *models.Book, rel record.Relation, tally *edgeTally, advance func()) error {
	kind := models.RelationKind(rel.Kind)
	if _, err := models.WeightOf(kind); err != nil {
		return fmt.Errorf("book %s: %w", source.ID, err)
	}

	for _, targetID := range rel.Targets {
		target, err := tx.FindBook(ctx, targetID)
		if errors.Is(err, graphstore.ErrNotFound) {
			tally.skipped++
			advance()
			continue
		}
		if err != nil {
			return fmt.Errorf("find book %s: %w", targetID, err)
		}

		edge, err := models.NewRelated(source, target, kind)
		if err != nil {
			return err
		}
		if err := tx.MergeRelated(ctx, edge); err != nil {
			return fmt.Errorf("merge %s %s -> %s: %w", kind, source.ID, target.ID, err)
		}
		tally.merged++
		advance()
	}
	return nil
}

// ReviewStage merges a User and a Reviewed edge per review record, each review
// in its own transaction.
type ReviewStage struct{}

func (ReviewStage) Name() string       { return "reviews" }
func (ReviewStage) Requires() []string { return []string{"books"} }

func (s ReviewStage) Run(ctx context.Context, st *State) error {
	bar := st.bar(s.Name(), st.lines(ctx, st.ReviewsPath))

	err := record.ForEach(st.ReviewsPath, func(rec record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := reviewFrom(rec)
		if err != nil {
			return err
		}

		err = st.Store.Transact(ctx, func(tx graphstore.Tx) error {
			book, err := tx.FindBook(ctx, r.asin)
			if err != nil {
				return fmt.Errorf("review by %s: book %s: %w", r.user.ID, r.asin, err)
			}
			reviewed := models.NewReviewed(r.user, book, r.helpful, r.text, r.overall, r.summary, r.unixTime, r.time)
			if err := tx.MergeUser(ctx, r.user); err != nil {
				return fmt.Errorf("merge user %s: %w", r.user.ID, err)
			}
			if err := tx.MergeReviewed(ctx, reviewed); err != nil {
				return fmt.Errorf("merge review %s -> %s: %w", r.user.ID, book.ID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		st.Summary.Reviews++
		bar.Next()
		return nil
	})
	if err != nil {
		return err
	}
	bar.Finish()
	return nil
}

type review struct {
	user     *models.User
	asin     string
	helpful  any
	text     any
	overall  any
	summary  any
	unixTime any
	time     any
}

// reviewFrom reads a review record. Only the reviewer id and asin must be
// strings; every other attribute is passed on as decoded, nil when absent.
func reviewFrom(rec record.Record) (*review, error) {
	userID, err := rec.String("reviewerID")
	if err != nil {
		return nil, fmt.Errorf("review record: %w", err)
	}
	if userID == "" {
		return nil, fmt.Errorf("review record without reviewerID")
	}
	asin, err := rec.String("asin")
	if err != nil {
		return nil, fmt.Errorf("review by %s: %w", userID, err)
	}

	return &review{
		user:     models.NewUser(rec.Get("reviewerName"), userID),
		asin:     asin,
		helpful:  rec.Get("helpful"),
		text:     rec.Get("reviewText"),
		overall:  rec.Get("overall"),
		summary:  rec.Get("summary"),
		unixTime: rec.Get("unixReviewTime"),
		time:     rec.Get("reviewTime"),
	}, nil
}
