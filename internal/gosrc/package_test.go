package gosrc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// writeFiles creates files relative to root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func parseTestPackage(t *testing.T, importPath string, files map[string]string) *Package {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, files)

	p := NewParser()
	defer p.Close()
	pkg, err := ParseDir(context.Background(), p, dir, importPath)
	require.NoError(t, err)
	return pkg
}

const stuffSource = `// Package pkg does stuff.
// @api.Audit
package pkg

import (
	"example.com/api"
	meta "example.com/meta/v2"
)

// Stuff is annotated.
// @api.Audit
// @meta.Tag(name=x)
type Stuff struct {
	// @api.Audit
	Name string
	A, B int
	Base
	*api.Other
}

// Run is annotated.
// @api.Audit
func (s *Stuff) Run() {}

func (s Stuff) plain() {}

// @api.Audit
func NewStuff() *Stuff { return &Stuff{} }

// @api.Audit
func helper() {}

type (
	// @Local
	Base struct{}

	Runner interface {
		// @api.Audit
		Run()
		Base
	}
)

// @api.Audit
var V = 1
`

func TestParseDir_ExtractsDeclarations(t *testing.T) {
	// Given: a package with annotated declarations of every kind
	pkg := parseTestPackage(t, "example.com/pkg", map[string]string{
		"stuff.go":      stuffSource,
		"stuff_test.go": "package pkg\n\n// @api.Audit\ntype Hidden struct{}\n",
	})

	// Then: package metadata is read
	assert.Equal(t, "pkg", pkg.Name)
	require.Len(t, pkg.Files, 1, "test files are skipped")
	assert.False(t, pkg.HasError())
	assert.Equal(t, []Import{{Path: "example.com/api"}, {Name: "meta", Path: "example.com/meta/v2"}}, pkg.Files[0].Imports)

	// And: classes are extracted in declaration order
	require.Len(t, pkg.Classes, 3)
	stuff, ok := pkg.Class("Stuff")
	require.True(t, ok)
	assert.Equal(t, "example.com/pkg.Stuff", stuff.BinaryName())
	assert.Equal(t, element.Annotations{
		{Type: "api.Audit"},
		{Type: "meta.Tag", Args: map[string]string{"name": "x"}},
	}, stuff.Annotations, "names stay raw until added to a program")
	assert.Equal(t, 13, stuff.Position.Line)

	// And: fields, embeds, methods and constructors attach to the class
	var fields []string
	for _, f := range stuff.Fields {
		fields = append(fields, f.Name)
	}
	assert.Equal(t, []string{"Name", "A", "B"}, fields)
	assert.True(t, stuff.Fields[0].Annotations.Has("api.Audit"))
	assert.Equal(t, "string", stuff.Fields[0].Type)
	assert.Equal(t, []string{"Base", "api.Other"}, stuff.Embeds)

	require.Len(t, stuff.Methods, 2)
	assert.Equal(t, "Run", stuff.Methods[0].Name)
	assert.Same(t, stuff, stuff.Methods[0].Declaring)
	assert.True(t, stuff.Methods[0].Annotations.Has("api.Audit"))
	assert.Empty(t, stuff.Methods[1].Annotations)

	require.Len(t, stuff.Constructors, 1)
	assert.Equal(t, "NewStuff", stuff.Constructors[0].Name)

	// And: grouped type specs take their own comments
	base, ok := pkg.Class("Base")
	require.True(t, ok)
	assert.True(t, base.Annotations.Has("Local"))

	runner, ok := pkg.Class("Runner")
	require.True(t, ok)
	assert.True(t, runner.Interface)
	assert.Empty(t, runner.Annotations)
	require.Len(t, runner.Methods, 1)
	assert.True(t, runner.Methods[0].Annotations.Has("api.Audit"))
	assert.Equal(t, []string{"Base"}, runner.Embeds)

	// And: plain functions and variables are unsupported
	require.Len(t, pkg.Unsupported, 2)
	kinds := []string{pkg.Unsupported[0].Kind, pkg.Unsupported[1].Kind}
	assert.ElementsMatch(t, []string{"var", "func"}, kinds)
}

func TestParseDir_PackageAnnotationsFromAnyFile(t *testing.T) {
	pkg := parseTestPackage(t, "example.com/pkg", map[string]string{
		"a.go":   "package pkg\n",
		"doc.go": "// @api.Audit\npackage pkg\n\nimport \"example.com/api\"\n",
	})
	prog := NewProgram()
	prog.Add(pkg)

	assert.Equal(t, element.Annotations{{Type: "example.com/api.Audit"}}, pkg.Element.Annotations)
	assert.Equal(t, "pkg", pkg.Element.Name)
	assert.Contains(t, pkg.Element.Position.File, "doc.go")
}

func TestParseDir_ConstructorNamedNew(t *testing.T) {
	pkg := parseTestPackage(t, "example.com/client", map[string]string{
		"client.go": `package client

type Client struct{}

// @Ctor
func New(addr string) (*Client, error) { return &Client{}, nil }

// @Ctor
func NewOther() *Client { return nil }
`,
	})

	c, ok := pkg.Class("Client")
	require.True(t, ok)
	require.Len(t, c.Constructors, 1, "only New and NewClient construct a Client")
	assert.Equal(t, "New", c.Constructors[0].Name)
	require.Len(t, pkg.Unsupported, 1)
	assert.Equal(t, "NewOther", pkg.Unsupported[0].Name)
}

func TestParseDir_SyntaxErrorMarksFile(t *testing.T) {
	pkg := parseTestPackage(t, "example.com/broken", map[string]string{
		"ok.go":     "package broken\n\ntype Fine struct{}\n",
		"broken.go": "package broken\n\ntype Bad struct {\n",
	})

	assert.True(t, pkg.HasError())
	fine, ok := pkg.Class("Fine")
	require.True(t, ok)
	assert.False(t, pkg.FileOf(fine).HasError)
}

func TestParseDir_NoGoFiles(t *testing.T) {
	p := NewParser()
	defer p.Close()

	_, err := ParseDir(context.Background(), p, t.TempDir(), "example.com/empty")
	assert.ErrorIs(t, err, ErrNoGoFiles)
}

func TestPackage_ElementsOrder(t *testing.T) {
	pkg := parseTestPackage(t, "example.com/pkg", map[string]string{"stuff.go": stuffSource})

	elems := pkg.Elements()

	require.NotEmpty(t, elems)
	assert.Equal(t, element.KindPackage, elems[0].Kind())
	assert.Equal(t, element.KindClass, elems[1].Kind())
	assert.Equal(t, "Stuff", elems[1].SimpleName())
	assert.Equal(t, element.KindMethod, elems[2].Kind())
}
