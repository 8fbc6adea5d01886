// Package graph extracts a knowledge graph of people, emotions, themes and
// events from journal text using an LLM.
package graph

// Node types the extraction prompt asks for. The vocabulary is open: a type
// outside this set is kept as the model returned it.
const (
	NodeTypeEmotion = "emotion"
	NodeTypeTheme   = "theme"
	NodeTypePerson  = "person"
	NodeTypeEvent   = "event"
)

// KnownNodeTypes lists the node types named in the extraction prompt.
var KnownNodeTypes = []string{NodeTypeEmotion, NodeTypeTheme, NodeTypePerson, NodeTypeEvent}

// Weight bounds for extracted edges. Negative weights drain, positive support.
const (
	MinWeight = -1.0
	MaxWeight = 1.0
)

// Node is a concept proposed by the model for one entry.
type Node struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Edge is a directed relationship between two proposed nodes, referenced by label.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// Graph is the extraction for a single entry.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Empty returns a graph with no nodes and no edges.
// The slices are non-nil so the graph encodes as {"nodes":[],"edges":[]}.
func Empty() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// IsEmpty reports whether the graph proposes nothing to merge.
func (g Graph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// HasLabel reports whether a node with the given label was proposed.
func (g Graph) HasLabel(label string) bool {
	for _, n := range g.Nodes {
		if n.Label == label {
			return true
		}
	}
	return false
}
