package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/logger"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/models"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/neopersist"
)

// Executor is the part of neopersist.Neo4jExecutor the store needs.
type Executor interface {
	neopersist.DBRunner
	Transact(ctx context.Context, fn func(runner neopersist.DBRunner) error) error
	Close(ctx context.Context) error
}

// Neo4j is a Store backed by a Neo4j database.
type Neo4j struct {
	exec  Executor
	pm    *neopersist.PersistenceManager
	books *neopersist.Repository[models.Book]
	users *neopersist.Repository[models.User]
	log   *logger.Logger
}

// NewNeo4j builds a store over exec.
func NewNeo4j(exec Executor, log *logger.Logger) (*Neo4j, error) {
	pm := neopersist.NewPersistenceManager(exec)
	books, err := neopersist.RepositoryFor[models.Book](pm)
	if err != nil {
		return nil, fmt.Errorf("book repository: %w", err)
	}
	users, err := neopersist.RepositoryFor[models.User](pm)
	if err != nil {
		return nil, fmt.Errorf("user repository: %w", err)
	}
	return &Neo4j{
		exec:  exec,
		pm:    pm,
		books: books,
		users: users,
		log:   log.With("store", "Neo4j"),
	}, nil
}

func (s *Neo4j) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return s.exec.Transact(ctx, func(runner neopersist.DBRunner) error {
		return fn(&neo4jTx{
			pm:    s.pm.WithRunner(runner),
			books: s.books.WithRunner(runner),
			users: s.users.WithRunner(runner),
		})
	})
}

// EnsureSchema is best effort: a constraint that cannot be created is logged
// and loading carries on, since MERGE alone still upserts correctly.
func (s *Neo4j) EnsureSchema(ctx context.Context) error {
	if err := neopersist.EnsureUniqueConstraint[models.Book](ctx, s.pm); err != nil {
		s.log.Warn("neo4j schema init failed (continuing)", "label", s.books.Label(), "error", err)
	}
	if err := neopersist.EnsureUniqueConstraint[models.User](ctx, s.pm); err != nil {
		s.log.Warn("neo4j schema init failed (continuing)", "label", s.users.Label(), "error", err)
	}
	return nil
}

func (s *Neo4j) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Books, err = s.books.Count(ctx); err != nil {
		return c, fmt.Errorf("count books: %w", err)
	}
	if c.Users, err = s.users.Count(ctx); err != nil {
		return c, fmt.Errorf("count users: %w", err)
	}
	if c.Related, err = s.pm.CountRelations(ctx, relationTypes()...); err != nil {
		return c, fmt.Errorf("count related: %w", err)
	}
	if c.Reviewed, err = s.pm.CountRelations(ctx, models.ReviewedType); err != nil {
		return c, fmt.Errorf("count reviews: %w", err)
	}
	return c, nil
}

const neighborhoodQuery = `
MATCH (b:Book {id: $id})
OPTIONAL MATCH (b)-[r]-(o)
RETURN b, r, o
`

func (s *Neo4j) Neighborhood(ctx context.Context, id string) (*models.GraphResult, error) {
	return s.pm.RunGraph(ctx, neighborhoodQuery, map[string]interface{}{"id": id})
}

const recommendQuery = `
MATCH (u:User {id: $user_id})-[:reviewed]->(ub:Book)
WITH u, collect(ub) AS reviewed_books
MATCH (u)-[:reviewed]->(:Book)-[r]->(b:Book)
WHERE NOT b IN reviewed_books
RETURN b, sum(r.weight) AS score
ORDER BY score DESC, b.id
LIMIT $limit
`

func (s *Neo4j) Recommend(ctx context.Context, userID string, limit int) ([]models.Recommendation, error) {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	result, err := s.exec.Run(ctx, recommendQuery, map[string]interface{}{
		"user_id": userID,
		"limit":   int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("recommend for %s: %w", userID, err)
	}

	out := make([]models.Recommendation, 0, len(result.Records))
	for _, rec := range result.Records {
		raw, _ := rec.Get("b")
		node, ok := raw.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("recommend: return value 'b' is %T, not a node", raw)
		}
		book, err := s.books.FromNode(node)
		if err != nil {
			return nil, err
		}
		raw, _ = rec.Get("score")
		score, err := weightSum(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Recommendation{Book: book, Score: score})
	}
	return out, nil
}

// weightSum reads sum(r.weight), which Neo4j returns as an integer when
// every summed weight was integral or missing.
func weightSum(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("recommend: score is %T", v)
	}
}

func (s *Neo4j) Close(ctx context.Context) error {
	return s.exec.Close(ctx)
}

type neo4jTx struct {
	pm    *neopersist.PersistenceManager
	books *neopersist.Repository[models.Book]
	users *neopersist.Repository[models.User]
}

func (tx *neo4jTx) MergeBook(ctx context.Context, book *models.Book) error {
	return tx.books.Save(ctx, book)
}

func (tx *neo4jTx) FindBook(ctx context.Context, id string) (*models.Book, error) {
	return tx.books.FindByID(ctx, id)
}

func (tx *neo4jTx) MergeRelated(ctx context.Context, rel *models.Related) error {
	props, err := tx.pm.PropertiesOf(rel)
	if err != nil {
		return err
	}
	return tx.pm.MergeRelation(ctx, rel.From, rel.To, string(rel.Kind), props)
}

func (tx *neo4jTx) MergeUser(ctx context.Context, user *models.User) error {
	return tx.users.Save(ctx, user)
}

func (tx *neo4jTx) MergeReviewed(ctx context.Context, rev *models.Reviewed) error {
	props, err := tx.pm.PropertiesOf(rev)
	if err != nil {
		return err
	}
	return tx.pm.MergeRelation(ctx, rev.User, rev.Book, models.ReviewedType, props)
}
