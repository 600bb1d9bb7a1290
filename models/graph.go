package models

// GraphNode is a node as returned by a graph lookup, independent of its label.
type GraphNode struct {
	// ID is the element id Neo4j assigned to the node.
	ID string `json:"id"`

	Labels []string `json:"labels"`

	Properties map[string]interface{} `json:"properties"`
}

// Edge is a relationship as returned by a graph lookup. Source and Target are
// element ids of its endpoints.
type Edge struct {
	ID string `json:"id"`

	Source string `json:"source"`

	Target string `json:"target"`

	// Type is the relationship type, e.g. "also_bought" or "reviewed".
	Type string `json:"type"`

	Properties map[string]interface{} `json:"properties"`
}

// GraphResult is the neighbourhood of a book: every distinct node and edge a
// lookup returned, ready to be written out as JSON.
type GraphResult struct {
	Nodes []*GraphNode `json:"nodes"`

	Edges []*Edge `json:"edges"`
}
