package gosrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Point is a 0-based row/column position in a source file.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a syntax tree node detached from tree-sitter memory.
type Node struct {
	Type string
	// FieldName is the grammar field this node fills in its parent,
	// such as "name" or "result". Empty if none.
	FieldName  string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
	// Named is false for anonymous grammar nodes: punctuation, keywords
	// and statement terminators.
	Named bool
}

// Tree is a parsed Go file.
type Tree struct {
	Root   *Node
	Source []byte
}

// Parser wraps tree-sitter with the Go grammar. A Parser is not safe for
// concurrent use; create one per goroutine.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a Go parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &Parser{parser: p}
}

// Parse parses Go source code.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}

	return &Tree{
		Root:   convertNode(tsTree.RootNode(), ""),
		Source: source,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node, field string) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		FieldName: field,
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Named:    tsNode.IsNamed(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := 0; i < int(tsNode.ChildCount()); i++ {
		child := tsNode.Child(i)
		if child != nil {
			node.Children = append(node.Children, convertNode(child, tsNode.FieldNameForChild(i)))
		}
	}

	return node
}

// IsTerminator reports whether n is an anonymous statement terminator
// (a newline run or semicolon) rather than part of a declaration.
func (n *Node) IsTerminator() bool {
	return !n.Named && n.Type != "" && strings.Trim(n.Type, "\n\r;\x00") == ""
}

// Content returns the source text of the node.
func (n *Node) Content(source []byte) string {
	if n == nil || n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Field returns the first child filling the named grammar field.
func (n *Node) Field(name string) *Node {
	for _, child := range n.Children {
		if child.FieldName == name {
			return child
		}
	}
	return nil
}

// FindChildByType finds the first child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType finds all children with the given type (non-recursive).
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindFirstByType returns the first node of the given type in depth-first
// order, including n itself.
func (n *Node) FindFirstByType(nodeType string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Type == nodeType {
			found = c
			return false
		}
		return true
	})
	return found
}

// FindAllByType recursively finds all nodes with the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node

	if n.Type == nodeType {
		result = append(result, n)
	}

	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}

	return result
}

// Walk traverses the tree depth-first and calls fn for each node.
// Returning false skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
