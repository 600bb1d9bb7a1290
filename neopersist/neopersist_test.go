package neopersist

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type book struct {
	ID          string   `crud:"pk,property:id"`
	Price       *float64 `crud:"property:price"`
	Description *string  `crud:"property:description"`
	Pages       int      `crud:"property:pages"`
	Tags        []string `crud:"property:tags"`
	Scratch     string
}

type edge struct {
	Weight  float64 `crud:"property:weight"`
	Helpful []int64 `crud:"property:helpful"`
	Note    *string `crud:"property:note"`
	From    *book   `crud:"-"`
}

// fakeRunner records every query and replays canned results in order.
type fakeRunner struct {
	queries []string
	params  []map[string]interface{}
	results []*neo4j.EagerResult
	err     error
}

func (f *fakeRunner) Run(_ context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	f.queries = append(f.queries, query)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &neo4j.EagerResult{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func rows(key string, values ...any) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: []string{key}}
	for _, v := range values {
		res.Records = append(res.Records, &neo4j.Record{Keys: []string{key}, Values: []any{v}})
	}
	return res
}

// paramValues flattens nested parameter maps and slices into leaf values.
func paramValues(v any) []any {
	switch t := v.(type) {
	case map[string]interface{}:
		var out []any
		for _, item := range t {
			out = append(out, paramValues(item)...)
		}
		return out
	case []interface{}:
		var out []any
		for _, item := range t {
			out = append(out, paramValues(item)...)
		}
		return out
	default:
		return []any{v}
	}
}

func TestParseTags(t *testing.T) {
	meta, err := parseTags[book]()
	require.NoError(t, err)
	assert.Equal(t, "book", meta.Label)
	assert.Equal(t, "ID", meta.PKField)
	assert.Equal(t, "id", meta.PKProp)
	assert.Equal(t, map[string]string{
		"ID": "id", "Price": "price", "Description": "description", "Pages": "pages", "Tags": "tags",
	}, meta.Mappings)

	_, err = parseTags[edge]()
	assert.Error(t, err, "edge has no primary key")

	type twoKeys struct {
		A string `crud:"pk,property:a"`
		B string `crud:"pk,property:b"`
	}
	_, err = parseTags[twoKeys]()
	assert.Error(t, err)

	type noProp struct {
		A string `crud:"pk"`
	}
	_, err = parseTags[noProp]()
	assert.Error(t, err)

	_, err = parseTagsFromType(reflect.TypeOf(42))
	assert.Error(t, err)
}

func TestRepositorySave_Merges(t *testing.T) {
	runner := &fakeRunner{}
	repo, err := NewRepository[book](runner)
	require.NoError(t, err)

	price := 9.5
	require.NoError(t, repo.Save(context.Background(), &book{ID: "B1", Price: &price, Pages: 10}))

	require.Len(t, runner.queries, 1)
	assert.Contains(t, runner.queries[0], "MERGE")
	assert.Contains(t, runner.queries[0], "book")

	values := paramValues(runner.params[0])
	assert.Contains(t, values, "B1")
	assert.Contains(t, values, 9.5)
	assert.Contains(t, values, 10)
	assert.NotContains(t, values, "Scratch")
}

type loose struct {
	ID    string `crud:"pk,property:id"`
	Score any    `crud:"property:score"`
	Notes any    `crud:"property:notes"`
}

func TestRepository_UntypedPropertiesPassThrough(t *testing.T) {
	runner := &fakeRunner{}
	repo, err := NewRepository[loose](runner)
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), &loose{ID: "L1", Score: int64(4)}))
	assert.Contains(t, paramValues(runner.params[0]), int64(4), "no coercion on write")

	got, err := repo.FromNode(neo4j.Node{
		ElementId: "4:x:2",
		Labels:    []string{"loose"},
		Props:     map[string]any{"id": "L1", "score": "4 stars"},
	})
	require.NoError(t, err)
	assert.Equal(t, "4 stars", got.Score)
	assert.Nil(t, got.Notes)
}

func TestRepositorySave_Nil(t *testing.T) {
	repo, err := NewRepository[book](&fakeRunner{})
	require.NoError(t, err)
	assert.Error(t, repo.Save(context.Background(), nil))
}

func TestRepositoryFindByID(t *testing.T) {
	runner := &fakeRunner{results: []*neo4j.EagerResult{rows("n", neo4j.Node{
		ElementId: "4:x:1",
		Labels:    []string{"book"},
		Props: map[string]any{
			"id":    "B1",
			"price": 12.0,
			"pages": int64(300),
			"tags":  []any{"a", "b"},
		},
	})}}
	repo, err := NewRepository[book](runner)
	require.NoError(t, err)

	got, err := repo.FindByID(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, "B1", got.ID)
	require.NotNil(t, got.Price)
	assert.Equal(t, 12.0, *got.Price)
	assert.Nil(t, got.Description)
	assert.Equal(t, 300, got.Pages)
	assert.Equal(t, []string{"a", "b"}, got.Tags)

	assert.Contains(t, runner.queries[0], "MATCH")
	assert.Contains(t, paramValues(runner.params[0]), "B1")
}

func TestRepositoryFindByID_NotFound(t *testing.T) {
	repo, err := NewRepository[book](&fakeRunner{})
	require.NoError(t, err)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryFindByID_Duplicate(t *testing.T) {
	n := neo4j.Node{Props: map[string]any{"id": "B1"}}
	repo, err := NewRepository[book](&fakeRunner{results: []*neo4j.EagerResult{rows("n", n, n)}})
	require.NoError(t, err)

	_, err = repo.FindByID(context.Background(), "B1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRepositoryFindByID_BadProperty(t *testing.T) {
	n := neo4j.Node{Props: map[string]any{"id": "B1", "pages": "many"}}
	repo, err := NewRepository[book](&fakeRunner{results: []*neo4j.EagerResult{rows("n", n)}})
	require.NoError(t, err)

	_, err = repo.FindByID(context.Background(), "B1")
	assert.ErrorContains(t, err, "pages")
}

func TestRepositoryCount(t *testing.T) {
	runner := &fakeRunner{results: []*neo4j.EagerResult{rows("total", int64(42))}}
	repo, err := NewRepository[book](runner)
	require.NoError(t, err)

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, "MATCH (n:book) RETURN count(n) AS total", runner.queries[0])
}

func TestRepositoryDelete(t *testing.T) {
	runner := &fakeRunner{}
	repo, err := NewRepository[book](runner)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(context.Background(), "B1"))
	assert.Contains(t, runner.queries[0], "DELETE")
}

func TestRepositoryWithRunner(t *testing.T) {
	base := &fakeRunner{}
	tx := &fakeRunner{}
	repo, err := NewRepository[book](base)
	require.NoError(t, err)

	require.NoError(t, repo.WithRunner(tx).Save(context.Background(), &book{ID: "B1"}))
	assert.Empty(t, base.queries)
	assert.Len(t, tx.queries, 1)
	assert.Equal(t, "book", repo.Label())
}

func TestRunnerErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	repo, err := NewRepository[book](&fakeRunner{err: boom})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Save(context.Background(), &book{ID: "B1"}), boom)
	_, err = repo.FindByID(context.Background(), "B1")
	assert.ErrorIs(t, err, boom)
}

func TestMergeRelation(t *testing.T) {
	runner := &fakeRunner{results: []*neo4j.EagerResult{rows("r", neo4j.Relationship{Type: "also_bought"})}}
	pm := NewPersistenceManager(runner)

	err := pm.MergeRelation(context.Background(), &book{ID: "A"}, &book{ID: "B"}, "also_bought", map[string]interface{}{"weight": 1.0})
	require.NoError(t, err)

	q := runner.queries[0]
	assert.Contains(t, q, "MERGE")
	assert.Contains(t, q, "also_bought")
	assert.NotContains(t, q, "CREATE")
	values := paramValues(runner.params[0])
	assert.Contains(t, values, "A")
	assert.Contains(t, values, "B")
	assert.Contains(t, values, 1.0)
}

func TestMergeRelation_MissingEndpoint(t *testing.T) {
	pm := NewPersistenceManager(&fakeRunner{})
	err := pm.MergeRelation(context.Background(), &book{ID: "A"}, &book{ID: "Z"}, "also_bought", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergeRelation_RejectsNonPointers(t *testing.T) {
	pm := NewPersistenceManager(&fakeRunner{})
	err := pm.MergeRelation(context.Background(), book{ID: "A"}, &book{ID: "B"}, "x", nil)
	assert.Error(t, err)
}

func TestPropertiesOf(t *testing.T) {
	pm := NewPersistenceManager(&fakeRunner{})

	props, err := pm.PropertiesOf(&edge{Weight: 0.75, Helpful: []int64{1, 2}, From: &book{ID: "A"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"weight":  0.75,
		"helpful": []int64{1, 2},
		"note":    nil,
	}, props)

	// cached metadata gives the same answer
	props, err = pm.PropertiesOf(edge{Weight: 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, props["weight"])

	_, err = pm.PropertiesOf((*edge)(nil))
	assert.Error(t, err)
}

func TestEnsureUniqueConstraint(t *testing.T) {
	runner := &fakeRunner{}
	pm := NewPersistenceManager(runner)

	require.NoError(t, EnsureUniqueConstraint[book](context.Background(), pm))
	assert.Equal(t, "CREATE CONSTRAINT book_id_unique IF NOT EXISTS FOR (n:book) REQUIRE n.id IS UNIQUE", runner.queries[0])

	pm = NewPersistenceManager(&fakeRunner{err: errors.New("denied")})
	assert.ErrorContains(t, EnsureUniqueConstraint[book](context.Background(), pm), "book_id_unique")
}

func TestCountRelations(t *testing.T) {
	runner := &fakeRunner{results: []*neo4j.EagerResult{rows("total", int64(7))}}
	pm := NewPersistenceManager(runner)

	n, err := pm.CountRelations(context.Background(), "also_bought", "also_viewed")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []string{"also_bought", "also_viewed"}, runner.params[0]["types"])

	n, err = pm.CountRelations(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, runner.queries, 1)
}

func TestRunGraph_Dedupes(t *testing.T) {
	a := neo4j.Node{ElementId: "n1", Labels: []string{"Book"}, Props: map[string]any{"id": "A"}}
	b := neo4j.Node{ElementId: "n2", Labels: []string{"Book"}, Props: map[string]any{"id": "B"}}
	r := neo4j.Relationship{ElementId: "r1", StartElementId: "n1", EndElementId: "n2", Type: "also_bought", Props: map[string]any{"weight": 1.0}}

	res := &neo4j.EagerResult{Keys: []string{"b", "r", "o"}, Records: []*neo4j.Record{
		{Keys: []string{"b", "r", "o"}, Values: []any{a, r, b}},
		{Keys: []string{"b", "r", "o"}, Values: []any{a, r, b}},
		{Keys: []string{"b", "r", "o"}, Values: []any{a, nil, nil}},
	}}
	pm := NewPersistenceManager(&fakeRunner{results: []*neo4j.EagerResult{res}})

	g, err := pm.RunGraph(context.Background(), "MATCH ...", nil)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "n1", g.Edges[0].Source)
	assert.Equal(t, "n2", g.Edges[0].Target)
	assert.Equal(t, "also_bought", g.Edges[0].Type)
}

func TestFindGraph(t *testing.T) {
	runner := &fakeRunner{}
	pm := NewPersistenceManager(runner)

	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("b", "Book").WithProperties(map[string]interface{}{"id": "A"})).
		Return("b")

	_, err := pm.FindGraph(context.Background(), qb)
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, runner.queries, 1)
	assert.True(t, strings.Contains(runner.queries[0], "Book"))
}
