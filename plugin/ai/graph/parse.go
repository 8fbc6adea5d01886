package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseError is returned when no JSON object can be recovered from a reply.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse extraction: no JSON object in reply"
	}
	return fmt.Sprintf("parse extraction: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ShapeError is returned when the reply is valid JSON but not an extraction.
type ShapeError struct {
	Path   string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid extraction at %s: %s", e.Path, e.Reason)
}

type rawNode struct {
	Label *string `json:"label"`
	Type  *string `json:"type"`
}

type rawEdge struct {
	From   *string  `json:"from"`
	To     *string  `json:"to"`
	Weight *float64 `json:"weight"`
}

// ParseExtraction recovers and validates a graph from a raw LLM reply.
// On error the returned graph is empty.
func ParseExtraction(raw string) (Graph, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return Empty(), err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return Empty(), &ParseError{Raw: raw, Err: err}
	}

	nodesRaw, ok := fields["nodes"]
	if !ok || isNull(nodesRaw) {
		return Empty(), &ShapeError{Path: "nodes", Reason: "missing array"}
	}
	edgesRaw, ok := fields["edges"]
	if !ok || isNull(edgesRaw) {
		return Empty(), &ShapeError{Path: "edges", Reason: "missing array"}
	}

	var nodes []rawNode
	if err := json.Unmarshal(nodesRaw, &nodes); err != nil {
		return Empty(), &ShapeError{Path: "nodes", Reason: err.Error()}
	}
	var edges []rawEdge
	if err := json.Unmarshal(edgesRaw, &edges); err != nil {
		return Empty(), &ShapeError{Path: "edges", Reason: err.Error()}
	}

	g := Empty()
	seen := make(map[Node]bool, len(nodes))
	for i, n := range nodes {
		if n.Label == nil || strings.TrimSpace(*n.Label) == "" {
			return Empty(), &ShapeError{Path: fmt.Sprintf("nodes[%d].label", i), Reason: "required"}
		}
		if n.Type == nil || strings.TrimSpace(*n.Type) == "" {
			return Empty(), &ShapeError{Path: fmt.Sprintf("nodes[%d].type", i), Reason: "required"}
		}
		node := Node{
			Label: strings.TrimSpace(*n.Label),
			Type:  strings.ToLower(strings.TrimSpace(*n.Type)),
		}
		if seen[node] {
			continue
		}
		seen[node] = true
		g.Nodes = append(g.Nodes, node)
	}
	for i, e := range edges {
		if e.From == nil || strings.TrimSpace(*e.From) == "" {
			return Empty(), &ShapeError{Path: fmt.Sprintf("edges[%d].from", i), Reason: "required"}
		}
		if e.To == nil || strings.TrimSpace(*e.To) == "" {
			return Empty(), &ShapeError{Path: fmt.Sprintf("edges[%d].to", i), Reason: "required"}
		}
		if e.Weight == nil {
			return Empty(), &ShapeError{Path: fmt.Sprintf("edges[%d].weight", i), Reason: "required"}
		}
		g.Edges = append(g.Edges, Edge{
			From:   strings.TrimSpace(*e.From),
			To:     strings.TrimSpace(*e.To),
			Weight: ClampWeight(*e.Weight),
		})
	}
	return g, nil
}

// ClampWeight limits w to [MinWeight, MaxWeight].
func ClampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return 0
	}
	return math.Max(MinWeight, math.Min(MaxWeight, w))
}

// ExtractJSONObject returns the first JSON object embedded in an LLM reply.
// A fenced code block tagged json (or untagged) is preferred over the
// surrounding prose; otherwise fence markers are trimmed from the whole reply.
func ExtractJSONObject(raw string) (string, error) {
	body, ok := fencedBlock(raw)
	if !ok {
		body = trimFences(raw)
	}

	start := strings.IndexByte(body, '{')
	if start < 0 {
		return "", &ParseError{Raw: raw}
	}
	if end := matchBrace(body, start); end > 0 {
		return body[start : end+1], nil
	}
	if end := strings.LastIndexByte(body, '}'); end > start {
		return body[start : end+1], nil
	}
	return "", &ParseError{Raw: raw, Err: fmt.Errorf("unbalanced braces")}
}

var markdown = goldmark.New()

// fencedBlock returns the body of the first ``` block whose info string is
// empty or json.
func fencedBlock(raw string) (string, bool) {
	source := []byte(raw)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var (
		body  bytes.Buffer
		found bool
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(source)))
		if lang != "" && lang != "json" {
			return ast.WalkSkipChildren, nil
		}
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			body.Write(seg.Value(source))
		}
		found = true
		return ast.WalkStop, nil
	})
	if !found || strings.TrimSpace(body.String()) == "" {
		return "", false
	}
	return body.String(), true
}

func trimFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// matchBrace returns the index of the brace closing the one at start,
// skipping braces inside JSON strings, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isNull(m json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(m), []byte("null"))
}
