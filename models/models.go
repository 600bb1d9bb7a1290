// Package models contains the domain entities of the book graph.
// Node structs use `crud` struct tags to describe their mapping to Neo4j
// nodes; relationship structs tag only their properties.
package models

import (
	"errors"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/record"
)

// ErrUnknownRelation is returned for a relation kind outside the weight table.
var ErrUnknownRelation = errors.New("unknown relation kind")

// Book is a product of the catalog, stored as a `:Book` node. Attributes
// hold the decoded values as they appear in the catalog; nil means absent.
type Book struct {
	// ID is the product ASIN. It is the merge key and never changes once written.
	ID string `crud:"pk,property:id" json:"id"`

	Price       any `crud:"property:price" json:"price,omitempty"`
	Description any `crud:"property:description" json:"description,omitempty"`
}

// User is a reviewer, stored as a `:User` node.
type User struct {
	// ID is the reviewer id and the merge key.
	ID string `crud:"pk,property:id" json:"id"`

	// Name is the reviewer's display name as given, nil when absent.
	Name any `crud:"property:name" json:"name,omitempty"`
}

// RelationKind names a catalog-derived relation between two books. It is also
// the relationship type written to the graph.
type RelationKind string

const (
	AlsoBought      RelationKind = "also_bought"
	AlsoViewed      RelationKind = "also_viewed"
	BuyAfterViewing RelationKind = "buy_after_viewing"
	BoughtTogether  RelationKind = "bought_together"
)

var weights = map[RelationKind]float64{
	AlsoBought:      1,
	AlsoViewed:      0.5,
	BuyAfterViewing: 0.75,
	BoughtTogether:  2,
}

// WeightOf returns the fixed weight of kind.
func WeightOf(kind RelationKind) (float64, error) {
	w, ok := weights[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRelation, string(kind))
	}
	return w, nil
}

// Kinds lists the known relation kinds.
func Kinds() []RelationKind {
	return []RelationKind{AlsoBought, AlsoViewed, BuyAfterViewing, BoughtTogether}
}

// Related is a weighted Book -> Book edge whose type is Kind.
type Related struct {
	From   *Book        `crud:"-"`
	To     *Book        `crud:"-"`
	Kind   RelationKind `crud:"-"`
	Weight float64      `crud:"property:weight"`
}

// ReviewedType is the relationship type of a review edge.
const ReviewedType = "reviewed"

// Reviewed is a User -> Book edge carrying one review. The review
// attributes are stored exactly as decoded; a nil attribute is not written.
type Reviewed struct {
	User *User `crud:"-"`
	Book *Book `crud:"-"`

	Helpful        any     `crud:"property:helpful"`
	ReviewText     any     `crud:"property:reviewText"`
	Overall        any     `crud:"property:overall"`
	Summary        any     `crud:"property:summary"`
	UnixReviewTime any     `crud:"property:unixReviewTime"`
	ReviewTime     any     `crud:"property:reviewTime"`
	Weight         float64 `crud:"property:weight"`
}

// Recommendation is a book suggested to a user, scored by the summed weight
// of the edges leading to it from books the user reviewed.
type Recommendation struct {
	Book  *Book   `json:"book"`
	Score float64 `json:"score"`
}

// NewBook builds a Book. Price and description go through record.Clean, so a
// NaN in either becomes absent; anything else is kept as given.
func NewBook(id string, price, description any) *Book {
	cleaned := record.Clean(price, description)
	return &Book{ID: id, Price: cleaned[0], Description: cleaned[1]}
}

// NewUser builds a User. No field is sanitized.
func NewUser(name any, id string) *User {
	return &User{ID: id, Name: name}
}

// NewReviewed builds a review edge from user to book with weight 1. Review
// fields are kept verbatim.
func NewReviewed(user *User, book *Book, helpful, text, overall, summary, unixTime, time any) *Reviewed {
	return &Reviewed{
		User:           user,
		Book:           book,
		Helpful:        helpful,
		ReviewText:     text,
		Overall:        overall,
		Summary:        summary,
		UnixReviewTime: unixTime,
		ReviewTime:     time,
		Weight:         1,
	}
}

// NewRelated builds a kind edge from one book to another, weighted from the
// fixed table. An unknown kind is an error.
func NewRelated(from, to *Book, kind RelationKind) (*Related, error) {
	w, err := WeightOf(kind)
	if err != nil {
		return nil, err
	}
	return &Related{From: from, To: to, Kind: kind, Weight: w}, nil
}
