package neopersist

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/bookgraph/models"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// PersistenceManager is the central orchestrator for the persistence layer.
// It manages the database connection and provides access to repositories and complex,
// cross-entity operations like merging relationships.
type PersistenceManager struct {
	runner DBRunner
	// metaCache stores parsed entityMetadata to avoid costly reflection on every call.
	metaCache *sync.Map
}

// NewPersistenceManager creates a new instance of the PersistenceManager.
func NewPersistenceManager(runner DBRunner) *PersistenceManager {
	return &PersistenceManager{runner: runner, metaCache: &sync.Map{}}
}

// WithRunner returns a manager bound to runner that shares this manager's
// metadata cache. Use it to route relation writes through a transaction.
func (pm *PersistenceManager) WithRunner(runner DBRunner) *PersistenceManager {
	return &PersistenceManager{runner: runner, metaCache: pm.metaCache}
}

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given PersistenceManager.
func RepositoryFor[T any](pm *PersistenceManager) (*Repository[T], error) {
	return NewRepository[T](pm.runner)
}

// EnsureUniqueConstraint creates a uniqueness constraint on T's primary key
// property when none exists yet. It is safe to call on every start.
func EnsureUniqueConstraint[T any](ctx context.Context, pm *PersistenceManager) error {
	meta, err := parseTags[T]()
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s_unique", strings.ToLower(meta.Label), strings.ToLower(meta.PKProp))
	query := fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		name, meta.Label, meta.PKProp)
	if _, err := pm.runner.Run(ctx, query, nil); err != nil {
		return fmt.Errorf("could not create constraint %s: %w", name, err)
	}
	return nil
}

// MergeRelation ensures a single directed relationship of relType exists between
// two existing entities and sets relProps on it. Running it twice with the same
// endpoints and type updates the properties instead of adding a second edge.
// It uses reflection to find the entities' primary keys and labels to build the query.
func (pm *PersistenceManager) MergeRelation(ctx context.Context, fromEntity any, toEntity any, relType string, relProps map[string]interface{}) error {
	fromMeta, fromPKVal, err := pm.getEntityMetaAndPK(fromEntity)
	if err != nil {
		return err
	}
	toMeta, toPKVal, err := pm.getEntityMetaAndPK(toEntity)
	if err != nil {
		return err
	}

	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("a", fromMeta.Label).WithProperties(map[string]interface{}{fromMeta.PKProp: fromPKVal})).
		Match(gocypher.N("b", toMeta.Label).WithProperties(map[string]interface{}{toMeta.PKProp: toPKVal})).
		Merge(
			gocypher.NRef("a"),
			gocypher.R("r", relType).To(),
			gocypher.NRef("b"),
		)

	if len(relProps) > 0 {
		setProps := make(map[string]interface{}, len(relProps))
		for k, v := range relProps {
			setProps["r."+k] = v
		}
		qb = qb.Set(setProps)
	}

	query, params, err := qb.Return("r").Build()
	if err != nil {
		return err
	}

	result, err := pm.runner.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		// MATCH found no endpoints, so nothing was merged.
		return fmt.Errorf("merge %s relation %v -> %v: %w", relType, fromPKVal, toPKVal, ErrNotFound)
	}
	return nil
}

// PropertiesOf returns the tag-mapped properties of a relationship struct,
// keyed by database property name. Nil pointer fields map to nil.
func (pm *PersistenceManager) PropertiesOf(entity any) (map[string]interface{}, error) {
	val := reflect.ValueOf(entity)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("entity must not be nil")
		}
		val = val.Elem()
	}

	typ := val.Type()
	var meta *entityMetadata
	if cached, ok := pm.metaCache.Load(typ); ok {
		meta = cached.(*entityMetadata)
	} else {
		parsed, err := parseFieldTags(typ)
		if err != nil {
			return nil, err
		}
		pm.metaCache.Store(typ, parsed)
		meta = parsed
	}

	props := make(map[string]interface{}, len(meta.Mappings))
	for fieldName, propName := range meta.Mappings {
		props[propName] = propertyValue(val.FieldByName(fieldName))
	}
	return props, nil
}

// getEntityMetaAndPK is an internal helper that retrieves an entity's metadata and primary key value.
// It uses a cache to optimize performance by avoiding repeated reflection.
func (pm *PersistenceManager) getEntityMetaAndPK(entity any) (*entityMetadata, any, error) {
	val := reflect.ValueOf(entity)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return nil, nil, fmt.Errorf("entity must be a non-nil pointer")
	}

	typ := val.Elem().Type()

	// First, attempt to load metadata from the cache for performance.
	if cached, ok := pm.metaCache.Load(typ); ok {
		meta := cached.(*entityMetadata)
		if meta.PKField != "" {
			return meta, val.Elem().FieldByName(meta.PKField).Interface(), nil
		}
	}

	// If not found in cache, parse the tags using reflection.
	meta, err := parseTagsFromType(typ)
	if err != nil {
		return nil, nil, err
	}
	// Store the newly parsed metadata in the cache for future use.
	pm.metaCache.Store(typ, meta)

	pkValue := val.Elem().FieldByName(meta.PKField).Interface()
	return meta, pkValue, nil
}

// FindGraph executes a graph query defined by a gocypher.QueryBuilder and maps the result
// into a generic graph structure composed of nodes and edges.
//
// The caller is responsible for constructing a valid query via the QueryBuilder, including
// a RETURN clause that specifies which nodes and relationships should be included in the
// final graph. For example, `RETURN b, r, o`.
//
// Nodes and relationships returned in several rows appear once in the result.
//
// Returns:
//   - A pointer to a models.GraphResult containing the de-duplicated nodes and edges from the query.
//   - An ErrNotFound error if the query executes successfully but returns zero records.
//   - Any other error encountered during query building or execution.
func (pm *PersistenceManager) FindGraph(ctx context.Context, qb *gocypher.QueryBuilder) (*models.GraphResult, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}

	return pm.RunGraph(ctx, query, params)
}

// RunGraph is FindGraph for a query written directly in Cypher. Null values,
// as produced by OPTIONAL MATCH, are ignored.
func (pm *PersistenceManager) RunGraph(ctx context.Context, query string, params map[string]interface{}) (*models.GraphResult, error) {
	eagerResult, err := pm.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if len(eagerResult.Records) == 0 {
		return nil, ErrNotFound
	}

	graph := &models.GraphResult{
		Nodes: make([]*models.GraphNode, 0),
		Edges: make([]*models.Edge, 0),
	}
	seenNodeIDs := make(map[string]bool)
	seenEdgeIDs := make(map[string]bool)

	for _, record := range eagerResult.Records {
		for _, value := range record.Values {
			switch v := value.(type) {
			case neo4j.Node:
				if !seenNodeIDs[v.ElementId] {
					graph.Nodes = append(graph.Nodes, &models.GraphNode{
						ID:         v.ElementId,
						Labels:     v.Labels,
						Properties: v.Props,
					})
					seenNodeIDs[v.ElementId] = true
				}

			case neo4j.Relationship:
				if !seenEdgeIDs[v.ElementId] {
					graph.Edges = append(graph.Edges, &models.Edge{
						ID:         v.ElementId,
						Source:     v.StartElementId,
						Target:     v.EndElementId,
						Type:       v.Type,
						Properties: v.Props,
					})
					seenEdgeIDs[v.ElementId] = true
				}
			}
		}
	}

	return graph, nil
}

// CountRelations returns the number of relationships whose type is one of relTypes.
func (pm *PersistenceManager) CountRelations(ctx context.Context, relTypes ...string) (int64, error) {
	if len(relTypes) == 0 {
		return 0, nil
	}
	result, err := pm.runner.Run(ctx,
		"MATCH ()-[r]->() WHERE type(r) IN $types RETURN count(r) AS total",
		map[string]interface{}{"types": relTypes})
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	total, ok := result.Records[0].Get("total")
	if !ok {
		return 0, fmt.Errorf("could not find return value 'total' in query result")
	}
	n, ok := total.(int64)
	if !ok {
		return 0, fmt.Errorf("count returned %T, expected int64", total)
	}
	return n, nil
}
