package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/models"
)

type relatedKey struct {
	From, To string
	Kind     models.RelationKind
}

type reviewedKey struct {
	User, Book string
}

type memState struct {
	books    map[string]models.Book
	users    map[string]models.User
	related  map[relatedKey]float64
	reviewed map[reviewedKey]models.Reviewed
}

func newMemState() *memState {
	return &memState{
		books:    make(map[string]models.Book),
		users:    make(map[string]models.User),
		related:  make(map[relatedKey]float64),
		reviewed: make(map[reviewedKey]models.Reviewed),
	}
}

// apply copies every entry of p into s.
func (s *memState) apply(p *memState) {
	for k, v := range p.books {
		s.books[k] = v
	}
	for k, v := range p.users {
		s.users[k] = v
	}
	for k, v := range p.related {
		s.related[k] = v
	}
	for k, v := range p.reviewed {
		s.reviewed[k] = v
	}
}

// Memory is an in-process Store. A transaction journals its writes and
// applies them to the committed graph only when it succeeds, so its cost
// grows with what it writes, not with the size of the graph.
type Memory struct {
	mu    sync.Mutex
	state *memState
	// Transactions counts committed and rolled back transactions.
	Transactions int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) Transact(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Transactions++
	tx := &memTx{base: m.state, pending: newMemState()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state.apply(tx.pending)
	return nil
}

func (m *Memory) EnsureSchema(context.Context) error { return nil }

func (m *Memory) Counts(context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counts{
		Books:    int64(len(m.state.books)),
		Users:    int64(len(m.state.users)),
		Related:  int64(len(m.state.related)),
		Reviewed: int64(len(m.state.reviewed)),
	}, nil
}

// Related returns the weight of the kind edge from -> to and whether it exists.
func (m *Memory) Related(from, to string, kind models.RelationKind) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.related[relatedKey{From: from, To: to, Kind: kind}]
	return w, ok
}

// Review returns the review edge from user to book.
func (m *Memory) Review(userID, bookID string) (models.Reviewed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.reviewed[reviewedKey{User: userID, Book: bookID}]
	return r, ok
}

// User returns the stored user with id.
func (m *Memory) User(id string) (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	return u, ok
}

// Book returns the stored book with id.
func (m *Memory) Book(id string) (models.Book, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.books[id]
	return b, ok
}

func (m *Memory) Neighborhood(_ context.Context, id string) (*models.GraphResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.state.books[id]
	if !ok {
		return nil, ErrNotFound
	}

	g := &models.GraphResult{Nodes: make([]*models.GraphNode, 0), Edges: make([]*models.Edge, 0)}
	seen := make(map[string]bool)
	addBook := func(b models.Book) string {
		nid := "book:" + b.ID
		if !seen[nid] {
			seen[nid] = true
			g.Nodes = append(g.Nodes, &models.GraphNode{ID: nid, Labels: []string{"Book"}, Properties: bookProps(b)})
		}
		return nid
	}
	addUser := func(u models.User) string {
		nid := "user:" + u.ID
		if !seen[nid] {
			seen[nid] = true
			g.Nodes = append(g.Nodes, &models.GraphNode{ID: nid, Labels: []string{"User"}, Properties: userProps(u)})
		}
		return nid
	}
	addBook(book)

	for k, w := range m.state.related {
		if k.From != id && k.To != id {
			continue
		}
		src := addBook(m.state.books[k.From])
		dst := addBook(m.state.books[k.To])
		g.Edges = append(g.Edges, &models.Edge{
			ID:         fmt.Sprintf("%s-%s-%s", k.From, k.Kind, k.To),
			Source:     src,
			Target:     dst,
			Type:       string(k.Kind),
			Properties: map[string]interface{}{"weight": w},
		})
	}
	for k, r := range m.state.reviewed {
		if k.Book != id {
			continue
		}
		src := addUser(m.state.users[k.User])
		g.Edges = append(g.Edges, &models.Edge{
			ID:     fmt.Sprintf("%s-%s-%s", k.User, models.ReviewedType, k.Book),
			Source: src,
			Target: "book:" + id,
			Type:   models.ReviewedType,
			Properties: withoutNil(map[string]interface{}{
				"helpful":        r.Helpful,
				"reviewText":     r.ReviewText,
				"overall":        r.Overall,
				"summary":        r.Summary,
				"unixReviewTime": r.UnixReviewTime,
				"reviewTime":     r.ReviewTime,
				"weight":         r.Weight,
			}),
		})
	}
	sort.Slice(g.Edges, func(i, j int) bool { return g.Edges[i].ID < g.Edges[j].ID })
	return g, nil
}

// Recommend scores every book one related edge away from a book the user
// reviewed, leaving out books the user already reviewed.
func (m *Memory) Recommend(_ context.Context, userID string, limit int) ([]models.Recommendation, error) {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	reviewed := make(map[string]bool)
	for k := range m.state.reviewed {
		if k.User == userID {
			reviewed[k.Book] = true
		}
	}
	scores := make(map[string]float64)
	for k, w := range m.state.related {
		if reviewed[k.From] && !reviewed[k.To] {
			scores[k.To] += w
		}
	}

	out := make([]models.Recommendation, 0, len(scores))
	for id, score := range scores {
		b := m.state.books[id]
		out = append(out, models.Recommendation{Book: &b, Score: score})
	}
	sortRecommendations(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }

func bookProps(b models.Book) map[string]interface{} {
	return withoutNil(map[string]interface{}{"id": b.ID, "price": b.Price, "description": b.Description})
}

// memTx reads through its pending writes to the committed graph.
type memTx struct {
	base    *memState
	pending *memState
}

func (tx *memTx) book(id string) (models.Book, bool) {
	if b, ok := tx.pending.books[id]; ok {
		return b, true
	}
	b, ok := tx.base.books[id]
	return b, ok
}

func (tx *memTx) hasUser(id string) bool {
	if _, ok := tx.pending.users[id]; ok {
		return true
	}
	_, ok := tx.base.users[id]
	return ok
}

func (tx *memTx) MergeBook(_ context.Context, book *models.Book) error {
	if book == nil || book.ID == "" {
		return fmt.Errorf("book without id")
	}
	tx.pending.books[book.ID] = *book
	return nil
}

func (tx *memTx) FindBook(_ context.Context, id string) (*models.Book, error) {
	b, ok := tx.book(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (tx *memTx) MergeRelated(_ context.Context, rel *models.Related) error {
	_, fromOK := tx.book(rel.From.ID)
	_, toOK := tx.book(rel.To.ID)
	if !fromOK || !toOK {
		return fmt.Errorf("merge %s relation %s -> %s: %w", rel.Kind, rel.From.ID, rel.To.ID, ErrNotFound)
	}
	tx.pending.related[relatedKey{From: rel.From.ID, To: rel.To.ID, Kind: rel.Kind}] = rel.Weight
	return nil
}

func (tx *memTx) MergeUser(_ context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user without id")
	}
	tx.pending.users[user.ID] = *user
	return nil
}

func (tx *memTx) MergeReviewed(_ context.Context, rev *models.Reviewed) error {
	_, bookOK := tx.book(rev.Book.ID)
	if !tx.hasUser(rev.User.ID) || !bookOK {
		return fmt.Errorf("merge %s relation %s -> %s: %w", models.ReviewedType, rev.User.ID, rev.Book.ID, ErrNotFound)
	}
	stored := *rev
	stored.User, stored.Book = nil, nil
	tx.pending.reviewed[reviewedKey{User: rev.User.ID, Book: rev.Book.ID}] = stored
	return nil
}

func userProps(u models.User) map[string]interface{} {
	return withoutNil(map[string]interface{}{"id": u.ID, "name": u.Name})
}

// withoutNil drops absent properties, matching a graph where SET to null
// removes the property.
func withoutNil(props map[string]interface{}) map[string]interface{} {
	for k, v := range props {
		if v == nil {
			delete(props, k)
		}
	}
	return props
}
