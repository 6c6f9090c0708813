package element

import (
	"fmt"
	"strings"
)

// Kind identifies which case of the Element variant a value is.
type Kind int

const (
	KindClass Kind = iota + 1
	KindMethod
	KindField
	KindConstructor
	KindPackage
)

var kindNames = map[Kind]string{
	KindClass:       "class",
	KindMethod:      "method",
	KindField:       "field",
	KindConstructor: "constructor",
	KindPackage:     "package",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name. "type" is accepted as an alias for class.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "type" {
		return KindClass, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// Position is a source position. Line and Column are 1-based.
type Position struct {
	File   string
	Line   int
	Column int
}

// IsValid reports whether the position refers to a file.
func (p Position) IsValid() bool {
	return p.File != ""
}

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	if p.Line == 0 {
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Element is an annotated declaration. The set of implementations is
// closed: *Class, *Method, *Field, *Constructor and *Package.
type Element interface {
	Kind() Kind
	// SimpleName is the unqualified declaration name.
	SimpleName() string
	// Mirrors returns the annotations present on the element, including
	// inherited ones.
	Mirrors() Annotations
	Pos() Position

	sealed()
}

// Package is a package-level declaration.
type Package struct {
	// Path is the import path.
	Path        string
	Name        string
	Annotations Annotations
	Position    Position
}

// Class is a named type declaration.
type Class struct {
	// Package is the import path of the declaring package.
	Package     string
	Name        string
	Annotations Annotations
	Position    Position

	// Interface is true for interface types.
	Interface bool
	// Embeds lists the binary names of embedded types, in declaration order.
	Embeds []string

	Methods      []*Method
	Fields       []*Field
	Constructors []*Constructor
}

// BinaryName returns the fully qualified class name, "<import path>.<Name>".
func (c *Class) BinaryName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// Method is a method declared on a class.
type Method struct {
	Declaring   *Class
	Name        string
	Annotations Annotations
	Position    Position
}

// Field is a named struct field.
type Field struct {
	Declaring   *Class
	Name        string
	Type        string
	Annotations Annotations
	Position    Position
}

// Constructor is a function returning a new value of its declaring class.
type Constructor struct {
	Declaring   *Class
	Name        string
	Annotations Annotations
	Position    Position
}

func (*Package) Kind() Kind     { return KindPackage }
func (*Class) Kind() Kind       { return KindClass }
func (*Method) Kind() Kind      { return KindMethod }
func (*Field) Kind() Kind       { return KindField }
func (*Constructor) Kind() Kind { return KindConstructor }

func (p *Package) SimpleName() string     { return p.Name }
func (c *Class) SimpleName() string       { return c.Name }
func (m *Method) SimpleName() string      { return m.Name }
func (f *Field) SimpleName() string       { return f.Name }
func (c *Constructor) SimpleName() string { return c.Name }

func (p *Package) Mirrors() Annotations     { return p.Annotations }
func (c *Class) Mirrors() Annotations       { return c.Annotations }
func (m *Method) Mirrors() Annotations      { return m.Annotations }
func (f *Field) Mirrors() Annotations       { return f.Annotations }
func (c *Constructor) Mirrors() Annotations { return c.Annotations }

func (p *Package) Pos() Position     { return p.Position }
func (c *Class) Pos() Position       { return c.Position }
func (m *Method) Pos() Position      { return m.Position }
func (f *Field) Pos() Position       { return f.Position }
func (c *Constructor) Pos() Position { return c.Position }

func (*Package) sealed()     {}
func (*Class) sealed()       {}
func (*Method) sealed()      {}
func (*Field) sealed()       {}
func (*Constructor) sealed() {}

// Declaring returns the declaring class of a member, or nil for classes
// and packages.
func Declaring(e Element) *Class {
	switch e := e.(type) {
	case *Method:
		return e.Declaring
	case *Field:
		return e.Declaring
	case *Constructor:
		return e.Declaring
	}
	return nil
}

// Describe returns a short human-readable identity such as
// "method example.com/app.Stuff#Run".
func Describe(e Element) string {
	if e == nil {
		return "<nil>"
	}
	switch e := e.(type) {
	case *Package:
		return "package " + e.Path
	case *Class:
		return "class " + e.BinaryName()
	}
	owner := "?"
	if c := Declaring(e); c != nil {
		owner = c.BinaryName()
	}
	return e.Kind().String() + " " + owner + "#" + e.SimpleName()
}
