package gosrc

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/element"
)

// ErrNoGoFiles is returned when a directory holds no buildable Go files.
var ErrNoGoFiles = stderrors.New("no Go files")

// Import is one import spec of a file.
type Import struct {
	// Name is the explicit local name, or "" for the default.
	Name string
	Path string
}

// File is one parsed source file of a package.
type File struct {
	Path     string
	Package  string
	Imports  []Import
	HasError bool

	// packageAnnotations are the raw directives on the package clause.
	packageAnnotations element.Annotations
	packagePos         element.Position
	locals             map[string]string
}

// Unsupported is an annotated declaration that has no element kind,
// such as a plain function or a variable.
type Unsupported struct {
	Kind        string
	Name        string
	Position    element.Position
	Annotations element.Annotations

	file *File
}

// Package is a parsed package directory.
type Package struct {
	Dir        string
	ImportPath string
	Name       string
	Files      []*File

	// Element carries the package-level annotations of all files.
	Element *element.Package
	// Classes lists named types in file and declaration order.
	Classes     []*element.Class
	Unsupported []Unsupported

	classes  map[string]*element.Class
	fileOf   map[element.Element]*File
	methods  []pendingMethod
	funcs    []pendingFunc
	resolved bool
}

type pendingMethod struct {
	recv   string
	method *element.Method
	file   *File
}

type pendingFunc struct {
	name        string
	returns     string
	annotations element.Annotations
	pos         element.Position
	file        *File
}

func newPackage(dir, importPath string) *Package {
	return &Package{
		Dir:        dir,
		ImportPath: importPath,
		Element:    &element.Package{Path: importPath},
		classes:    make(map[string]*element.Class),
		fileOf:     make(map[element.Element]*File),
	}
}

// Class returns the named type declared in the package.
func (p *Package) Class(name string) (*element.Class, bool) {
	c, ok := p.classes[name]
	return c, ok
}

// FileOf returns the file declaring e.
func (p *Package) FileOf(e element.Element) *File {
	if e == p.Element {
		return nil
	}
	return p.fileOf[e]
}

// HasError reports whether any file of the package has syntax errors.
func (p *Package) HasError() bool {
	for _, f := range p.Files {
		if f.HasError {
			return true
		}
	}
	return false
}

// Elements returns every element of the package: the package itself,
// then each class followed by its methods, fields and constructors.
func (p *Package) Elements() []element.Element {
	out := []element.Element{p.Element}
	for _, c := range p.Classes {
		out = append(out, c)
		for _, m := range c.Methods {
			out = append(out, m)
		}
		for _, f := range c.Fields {
			out = append(out, f)
		}
		for _, k := range c.Constructors {
			out = append(out, k)
		}
	}
	return out
}

// ParseDir parses the non-test Go files of dir.
func ParseDir(ctx context.Context, parser *Parser, dir, importPath string) (*Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") ||
			strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoGoFiles)
	}
	return ParseFiles(ctx, parser, dir, importPath, files)
}

// ParseFiles parses the given files as one package.
func ParseFiles(ctx context.Context, parser *Parser, dir, importPath string, files []string) (*Package, error) {
	files = slices.Clone(files)
	slices.Sort(files)

	pkg := newPackage(dir, importPath)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeSourceRead, fmt.Sprintf("read %s: %v", path, err), err).
				WithDetail("path", path)
		}
		tree, err := parser.Parse(ctx, src)
		if err != nil {
			return nil, errors.New(errors.ErrCodeSyntax, fmt.Sprintf("parse %s: %v", path, err), err).
				WithDetail("path", path)
		}
		pkg.addFile(tree, path)
	}
	pkg.assemble()
	return pkg, nil
}

func position(path string, n *Node) element.Position {
	return element.Position{File: path, Line: int(n.StartPoint.Row) + 1, Column: int(n.StartPoint.Column) + 1}
}

func (p *Package) addFile(tree *Tree, path string) {
	src := tree.Source
	f := &File{Path: path, HasError: tree.Root.HasError}
	p.Files = append(p.Files, f)

	nodes := tree.Root.Children
	for i, n := range nodes {
		switch n.Type {
		case "package_clause":
			f.Package = n.FindChildByType("package_identifier").Content(src)
			if p.Name == "" {
				p.Name = f.Package
				p.Element.Name = f.Package
			}
			f.packageAnnotations = parseDirectives(leadingComments(nodes, i, src))
			f.packagePos = position(path, n)
		case "import_declaration":
			for _, spec := range n.FindAllByType("import_spec") {
				f.addImport(spec, src)
			}
		case "type_declaration":
			p.addTypeDecl(n, nodes, i, f, src)
		case "method_declaration":
			p.addMethod(n, nodes, i, f, src)
		case "function_declaration":
			p.addFunc(n, nodes, i, f, src)
		case "var_declaration", "const_declaration":
			p.addValueDecl(n, nodes, i, f, src)
		}
	}
}

func (f *File) addImport(spec *Node, src []byte) {
	lit := spec.Field("path")
	if lit == nil {
		lit = spec.FindChildByType("interpreted_string_literal")
	}
	path, err := strconv.Unquote(lit.Content(src))
	if err != nil || path == "" {
		return
	}
	name := ""
	if n := spec.Field("name"); n != nil {
		name = n.Content(src)
	}
	f.Imports = append(f.Imports, Import{Name: name, Path: path})
}

func (p *Package) addTypeDecl(decl *Node, siblings []*Node, i int, f *File, src []byte) {
	grouped := decl.FindChildByType("(") != nil
	for j, spec := range decl.Children {
		if spec.Type != "type_spec" {
			continue
		}
		var comments []string
		if grouped {
			comments = leadingComments(decl.Children, j, src)
		} else {
			comments = leadingComments(siblings, i, src)
		}
		p.addTypeSpec(spec, parseDirectives(comments), f, src)
	}
}

func (p *Package) addTypeSpec(spec *Node, anns element.Annotations, f *File, src []byte) {
	nameNode := spec.Field("name")
	if nameNode == nil {
		nameNode = spec.FindChildByType("type_identifier")
	}
	name := nameNode.Content(src)
	if name == "" || name == "_" {
		return
	}

	c := &element.Class{
		Package:     p.ImportPath,
		Name:        name,
		Annotations: anns,
		Position:    position(f.Path, nameNode),
	}

	typeNode := spec.Field("type")
	if typeNode == nil && len(spec.Children) > 0 {
		typeNode = spec.Children[len(spec.Children)-1]
	}
	if typeNode != nil {
		switch typeNode.Type {
		case "struct_type":
			p.addStructFields(c, typeNode, f, src)
		case "interface_type":
			c.Interface = true
			p.addInterfaceElems(c, typeNode, f, src)
		}
	}

	p.classes[name] = c
	p.Classes = append(p.Classes, c)
	p.fileOf[c] = f
}

func (p *Package) addStructFields(c *element.Class, st *Node, f *File, src []byte) {
	list := st.FindChildByType("field_declaration_list")
	if list == nil {
		return
	}
	for j, fd := range list.Children {
		if fd.Type != "field_declaration" {
			continue
		}
		anns := parseDirectives(leadingComments(list.Children, j, src))
		typ := fd.Field("type")

		names := fd.FindChildrenByType("field_identifier")
		if len(names) == 0 {
			if typ == nil {
				typ = firstTypeNode(fd)
			}
			if ref := typeRef(typ, src); ref != "" {
				c.Embeds = append(c.Embeds, ref)
			}
			continue
		}

		for _, nm := range names {
			fld := &element.Field{
				Declaring:   c,
				Name:        nm.Content(src),
				Type:        typ.Content(src),
				Annotations: slices.Clone(anns),
				Position:    position(f.Path, nm),
			}
			c.Fields = append(c.Fields, fld)
			p.fileOf[fld] = f
		}
	}
}

func (p *Package) addInterfaceElems(c *element.Class, it *Node, f *File, src []byte) {
	body := it
	if l := it.FindChildByType("method_spec_list"); l != nil {
		body = l
	}
	for j, n := range body.Children {
		switch n.Type {
		case "method_elem", "method_spec":
			nameNode := n.Field("name")
			if nameNode == nil {
				nameNode = n.FindChildByType("field_identifier")
			}
			m := &element.Method{
				Declaring:   c,
				Name:        nameNode.Content(src),
				Annotations: parseDirectives(leadingComments(body.Children, j, src)),
				Position:    position(f.Path, nameNode),
			}
			c.Methods = append(c.Methods, m)
			p.fileOf[m] = f
		case "type_elem", "constraint_elem", "interface_type_name", "type_identifier", "qualified_type":
			// Unions such as "A | B" are constraints, not embeds.
			if n.FindChildByType("|") != nil {
				continue
			}
			if ref := typeRef(n, src); ref != "" {
				c.Embeds = append(c.Embeds, ref)
			}
		}
	}
}

func (p *Package) addMethod(decl *Node, siblings []*Node, i int, f *File, src []byte) {
	recv := decl.Field("receiver")
	if recv == nil {
		recv = decl.FindChildByType("parameter_list")
	}
	if recv == nil {
		return
	}
	recvType := recv.FindFirstByType("type_identifier")
	nameNode := decl.Field("name")
	if nameNode == nil {
		nameNode = decl.FindChildByType("field_identifier")
	}
	if recvType == nil || nameNode == nil {
		return
	}
	p.methods = append(p.methods, pendingMethod{
		recv: recvType.Content(src),
		method: &element.Method{
			Name:        nameNode.Content(src),
			Annotations: parseDirectives(leadingComments(siblings, i, src)),
			Position:    position(f.Path, nameNode),
		},
		file: f,
	})
}

func (p *Package) addFunc(decl *Node, siblings []*Node, i int, f *File, src []byte) {
	nameNode := decl.Field("name")
	if nameNode == nil {
		nameNode = decl.FindChildByType("identifier")
	}
	if nameNode == nil {
		return
	}
	p.funcs = append(p.funcs, pendingFunc{
		name:        nameNode.Content(src),
		returns:     resultTypeName(decl.Field("result"), src),
		annotations: parseDirectives(leadingComments(siblings, i, src)),
		pos:         position(f.Path, nameNode),
		file:        f,
	})
}

func (p *Package) addValueDecl(decl *Node, siblings []*Node, i int, f *File, src []byte) {
	anns := parseDirectives(leadingComments(siblings, i, src))
	if len(anns) == 0 {
		return
	}
	kind := strings.TrimSuffix(decl.Type, "_declaration")
	var names []string
	for _, spec := range append(decl.FindAllByType("var_spec"), decl.FindAllByType("const_spec")...) {
		for _, n := range spec.Children {
			if n.FieldName == "name" || (n.FieldName == "" && n.Type == "identifier") {
				names = append(names, n.Content(src))
			}
		}
	}
	p.Unsupported = append(p.Unsupported, Unsupported{
		Kind:        kind,
		Name:        strings.Join(names, ", "),
		Position:    position(f.Path, decl),
		Annotations: anns,
		file:        f,
	})
}

// assemble attaches methods and constructors to their classes once all
// files are parsed.
func (p *Package) assemble() {
	for _, pm := range p.methods {
		c, ok := p.classes[pm.recv]
		if !ok {
			continue
		}
		pm.method.Declaring = c
		c.Methods = append(c.Methods, pm.method)
		p.fileOf[pm.method] = pm.file
	}
	p.methods = nil

	for _, pf := range p.funcs {
		c, ok := p.classes[pf.returns]
		if ok && (pf.name == "New"+c.Name || pf.name == "New") {
			k := &element.Constructor{
				Declaring:   c,
				Name:        pf.name,
				Annotations: pf.annotations,
				Position:    pf.pos,
			}
			c.Constructors = append(c.Constructors, k)
			p.fileOf[k] = pf.file
			continue
		}
		if len(pf.annotations) > 0 {
			p.Unsupported = append(p.Unsupported, Unsupported{
				Kind:        "func",
				Name:        pf.name,
				Position:    pf.pos,
				Annotations: pf.annotations,
				file:        pf.file,
			})
		}
	}
	p.funcs = nil

	for _, f := range p.Files {
		if len(f.packageAnnotations) > 0 && !p.Element.Position.IsValid() {
			p.Element.Position = f.packagePos
		}
	}
	if !p.Element.Position.IsValid() && len(p.Files) > 0 {
		p.Element.Position = p.Files[0].packagePos
	}
}

// resultTypeName returns the local type name a function returns first,
// or "" for other results.
func resultTypeName(n *Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case "type_identifier":
		return n.Content(src)
	case "pointer_type", "generic_type":
		for _, c := range n.Children {
			if name := resultTypeName(c, src); name != "" {
				return name
			}
		}
	case "parameter_list":
		decl := n.FindChildByType("parameter_declaration")
		if decl == nil {
			return ""
		}
		if t := decl.Field("type"); t != nil {
			return resultTypeName(t, src)
		}
		return resultTypeName(firstTypeNode(decl), src)
	}
	return ""
}

// typeRef returns the written name of an embedded type, such as "Base"
// or "api.Base".
func typeRef(n *Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case "type_identifier":
		return n.Content(src)
	case "qualified_type":
		return strings.Join(strings.Fields(n.Content(src)), "")
	case "pointer_type", "generic_type", "type_elem", "constraint_elem", "interface_type_name", "parenthesized_type":
		for _, c := range n.Children {
			if ref := typeRef(c, src); ref != "" {
				return ref
			}
		}
	}
	return ""
}

func firstTypeNode(n *Node) *Node {
	for _, c := range n.Children {
		switch c.Type {
		case "type_identifier", "qualified_type", "pointer_type", "generic_type":
			return c
		}
	}
	return nil
}
