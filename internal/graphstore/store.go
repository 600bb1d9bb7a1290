// Package graphstore is the graph the loader writes through. Neo4j backs
// real runs; Memory backs tests and dry runs.
package graphstore

import (
	"context"
	"sort"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/models"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/neopersist"
)

// DefaultRecommendLimit caps Recommend when the caller asks for no limit.
const DefaultRecommendLimit = 50

// ErrNotFound is returned by lookups and by edge merges whose endpoints are missing.
var ErrNotFound = neopersist.ErrNotFound

// Tx is one unit of work. Every merge is an upsert keyed on the entity's
// identity: books and users by id, related edges by (from, to, kind), review
// edges by (user, book).
type Tx interface {
	MergeBook(ctx context.Context, book *models.Book) error
	FindBook(ctx context.Context, id string) (*models.Book, error)
	MergeRelated(ctx context.Context, rel *models.Related) error
	MergeUser(ctx context.Context, user *models.User) error
	MergeReviewed(ctx context.Context, rev *models.Reviewed) error
}

// Counts summarises what a store holds.
type Counts struct {
	Books    int64 `json:"books"`
	Users    int64 `json:"users"`
	Related  int64 `json:"related"`
	Reviewed int64 `json:"reviewed"`
}

// Store runs transactions against the graph.
type Store interface {
	// Transact commits fn's writes when it returns nil and discards them otherwise.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	// EnsureSchema creates the uniqueness constraints the merges rely on.
	EnsureSchema(ctx context.Context) error
	Counts(ctx context.Context) (Counts, error)
	// Neighborhood returns a book with every edge touching it and the nodes at the other end.
	Neighborhood(ctx context.Context, id string) (*models.GraphResult, error)
	// Recommend returns up to limit books reachable from the books userID
	// reviewed through one outgoing related edge, excluding books userID
	// already reviewed, best summed edge weight first. An unknown user gets
	// no recommendations.
	Recommend(ctx context.Context, userID string, limit int) ([]models.Recommendation, error)
	Close(ctx context.Context) error
}

func relationTypes() []string {
	kinds := models.Kinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

// sortRecommendations orders by score, highest first, then by book id.
func sortRecommendations(recs []models.Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Book.ID < recs[j].Book.ID
	})
}
