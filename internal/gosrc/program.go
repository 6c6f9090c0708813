package gosrc

import (
	"maps"
	"slices"
	"strings"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// Program is a set of parsed packages with resolved annotation names.
// A Program is not safe for concurrent use.
type Program struct {
	packages map[string]*Package
	names    map[string]string
	// inherit tracks inheritance state per class: 1 in progress, 2 done.
	inherit map[*element.Class]uint8

	// Lookup, when set, is consulted for classes of packages not added.
	Lookup func(binaryName string) (*element.Class, bool)
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		packages: make(map[string]*Package),
		names:    make(map[string]string),
		inherit:  make(map[*element.Class]uint8),
	}
}

// Add registers packages and resolves their annotation and embed names.
// Packages added together may refer to each other.
func (p *Program) Add(pkgs ...*Package) {
	for _, pkg := range pkgs {
		p.packages[pkg.ImportPath] = pkg
		p.names[pkg.ImportPath] = pkg.Name
	}
	for _, pkg := range pkgs {
		p.resolve(pkg)
	}
}

// Remove drops a package and resets inheritance state for its classes.
func (p *Program) Remove(importPath string) {
	pkg, ok := p.packages[importPath]
	if !ok {
		return
	}
	for _, c := range pkg.Classes {
		delete(p.inherit, c)
	}
	delete(p.packages, importPath)
}

// Package returns an added package.
func (p *Program) Package(importPath string) (*Package, bool) {
	pkg, ok := p.packages[importPath]
	return pkg, ok
}

// Packages returns all packages sorted by import path.
func (p *Program) Packages() []*Package {
	paths := slices.Sorted(maps.Keys(p.packages))
	out := make([]*Package, 0, len(paths))
	for _, path := range paths {
		out = append(out, p.packages[path])
	}
	return out
}

// Class resolves a binary name such as "example.com/api.Audit".
func (p *Program) Class(binaryName string) (*element.Class, bool) {
	pkgPath, name, ok := element.SplitBinaryName(binaryName)
	if ok {
		if pkg, ok := p.packages[pkgPath]; ok {
			return pkg.Class(name)
		}
	}
	if p.Lookup != nil {
		return p.Lookup(binaryName)
	}
	return nil, false
}

func (p *Program) packageName(importPath string) string {
	if name, ok := p.names[importPath]; ok && name != "" {
		return name
	}
	return defaultPackageName(importPath)
}

func (p *Program) resolve(pkg *Package) {
	if pkg.resolved {
		return
	}
	pkg.resolved = true

	for _, f := range pkg.Files {
		f.locals = make(map[string]string, len(f.Imports))
		for _, imp := range f.Imports {
			switch imp.Name {
			case "_", ".":
				continue
			case "":
				f.locals[p.packageName(imp.Path)] = imp.Path
			default:
				f.locals[imp.Name] = imp.Path
			}
		}
		anns := f.packageAnnotations
		resolveAnnotations(anns, pkg.ImportPath, f)
		pkg.Element.Annotations = append(pkg.Element.Annotations, anns...)
	}

	for _, c := range pkg.Classes {
		f := pkg.fileOf[c]
		resolveAnnotations(c.Annotations, pkg.ImportPath, f)
		for i, e := range c.Embeds {
			c.Embeds[i] = resolveName(e, pkg.ImportPath, f)
		}
		for _, m := range c.Methods {
			resolveAnnotations(m.Annotations, pkg.ImportPath, pkg.fileOf[m])
		}
		for _, fld := range c.Fields {
			resolveAnnotations(fld.Annotations, pkg.ImportPath, pkg.fileOf[fld])
		}
		for _, k := range c.Constructors {
			resolveAnnotations(k.Annotations, pkg.ImportPath, pkg.fileOf[k])
		}
	}
	for _, u := range pkg.Unsupported {
		resolveAnnotations(u.Annotations, pkg.ImportPath, u.file)
	}
}

func resolveAnnotations(anns element.Annotations, pkgPath string, f *File) {
	for i := range anns {
		anns[i].Type = resolveName(anns[i].Type, pkgPath, f)
	}
}

// resolveName maps a written name to a binary name. "Name" is local to
// the package, "alias.Name" goes through the file's imports, and anything
// else is taken literally.
func resolveName(raw, pkgPath string, f *File) string {
	i := strings.LastIndex(raw, ".")
	if i < 0 {
		return pkgPath + "." + raw
	}
	qual, name := raw[:i], raw[i+1:]
	if f != nil {
		if path, ok := f.locals[qual]; ok {
			return path + "." + name
		}
	}
	return raw
}

// Inherit appends the inherited annotations of embedded types to c.
// It is idempotent and tolerates embedding cycles.
func (p *Program) Inherit(c *element.Class) {
	switch p.inherit[c] {
	case 1, 2:
		return
	}
	p.inherit[c] = 1
	defer func() { p.inherit[c] = 2 }()

	for _, name := range c.Embeds {
		base, ok := p.Class(name)
		if !ok || base == c {
			continue
		}
		p.Inherit(base)
		for _, a := range base.Annotations {
			if c.Annotations.Has(a.Type) {
				continue
			}
			at, ok := p.Class(a.Type)
			if !ok || !element.IsInherited(at) {
				continue
			}
			a.Inherited = true
			c.Annotations = append(c.Annotations, a)
		}
	}
}

// InheritAll applies inheritance to every class of the program.
func (p *Program) InheritAll() {
	for _, pkg := range p.Packages() {
		for _, c := range pkg.Classes {
			p.Inherit(c)
		}
	}
}
