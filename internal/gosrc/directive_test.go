package gosrc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/pkg/element"
)

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		name     string
		comments []string
		want     element.Annotations
	}{
		{
			name:     "bare name",
			comments: []string{"// @Audit"},
			want:     element.Annotations{{Type: "Audit"}},
		},
		{
			name:     "single letter",
			comments: []string{"// @A"},
			want:     element.Annotations{{Type: "A"}},
		},
		{
			name:     "qualified with value",
			comments: []string{"// @annodex.Retention(runtime)"},
			want:     element.Annotations{{Type: "annodex.Retention", Args: map[string]string{"value": "runtime"}}},
		},
		{
			name:     "list argument",
			comments: []string{"// @annodex.Indexed(validators=exported|types-only)"},
			want: element.Annotations{{Type: "annodex.Indexed",
				Args: map[string]string{"validators": "exported|types-only"}}},
		},
		{
			name:     "comma list continues previous key",
			comments: []string{`// @api.Route(path="/x", methods=GET,POST)`},
			want: element.Annotations{{Type: "api.Route",
				Args: map[string]string{"path": "/x", "methods": "GET,POST"}}},
		},
		{
			name:     "full import path",
			comments: []string{"// @example.com/api.Audit"},
			want:     element.Annotations{{Type: "example.com/api.Audit"}},
		},
		{
			name:     "prose is ignored",
			comments: []string{"// Stuff does things, see @Audit for more.", "// email me @ home"},
		},
		{
			name:     "block comment",
			comments: []string{"/*\n * @A\n * @B(x=1)\n */"},
			want:     element.Annotations{{Type: "A"}, {Type: "B", Args: map[string]string{"x": "1"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDirectives(tt.comments))
		})
	}
}

func TestLeadingComments_SkipsTrailingCommentOfPreviousDecl(t *testing.T) {
	// Given: a trailing comment on the line above a declaration
	src := []byte(`package p

type A struct{} // @X
type B struct{}

// @Y
type C struct{}
`)
	p := NewParser()
	defer p.Close()
	tree, err := p.Parse(context.Background(), src)
	require.NoError(t, err)

	nodes := tree.Root.Children
	var got [][]string
	for i, n := range nodes {
		if n.Type == "type_declaration" {
			got = append(got, leadingComments(nodes, i, src))
		}
	}

	// Then: B has no doc comment, C has its own
	require.Len(t, got, 3)
	assert.Empty(t, got[0])
	assert.Empty(t, got[1])
	assert.Equal(t, []string{"// @Y"}, got[2])
}

func TestLeadingComments_StopsAtBlankLine(t *testing.T) {
	src := []byte(`package p

// @Detached

// Stuff is documented.
// @Attached
type Stuff struct{}
`)
	p := NewParser()
	defer p.Close()
	tree, err := p.Parse(context.Background(), src)
	require.NoError(t, err)

	nodes := tree.Root.Children
	for i, n := range nodes {
		if n.Type == "type_declaration" {
			assert.Equal(t, []string{"// Stuff is documented.", "// @Attached"}, leadingComments(nodes, i, src))
			return
		}
	}
	t.Fatal("no type declaration found")
}

func TestLeadingComments_AfterBlankLine(t *testing.T) {
	// Given: doc comments separated from the previous declaration by a
	// blank line, which the grammar folds into a terminator node
	src := []byte("package x\n\n// doc\n// @Y\ntype Y struct{}\n\n// @Z\nfunc (Y) Z() {}\n")
	p := NewParser()
	defer p.Close()
	tree, err := p.Parse(context.Background(), src)
	require.NoError(t, err)

	// When: collecting the doc comments of each declaration
	nodes := tree.Root.Children
	got := map[string][]string{}
	for i, n := range nodes {
		if n.Type == "type_declaration" || n.Type == "method_declaration" {
			got[n.Type] = leadingComments(nodes, i, src)
		}
	}

	// Then: both keep their comments
	assert.Equal(t, []string{"// doc", "// @Y"}, got["type_declaration"])
	assert.Equal(t, []string{"// @Z"}, got["method_declaration"])
}

func TestNode_IsTerminator(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"newline", Node{Type: "\n"}, true},
		{"semicolon", Node{Type: ";"}, true},
		{"named comment", Node{Type: "comment", Named: true}, false},
		{"punctuation", Node{Type: "("}, false},
		{"empty", Node{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.IsTerminator())
		})
	}
}
