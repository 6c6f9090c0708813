package element

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLocation is returned for malformed location strings and for
// elements that cannot be encoded.
var ErrInvalidLocation = errors.New("invalid location")

const (
	memberSep     = "#"
	methodSuffix  = "()"
	packageSuffix = ".*"
)

// Location encodes the index location of an element.
func Location(e Element) (string, error) {
	switch e := e.(type) {
	case *Class:
		if e.Name == "" {
			return "", fmt.Errorf("%w: class without a name", ErrInvalidLocation)
		}
		return e.BinaryName(), nil
	case *Method:
		owner, err := declaringName(e.Declaring, e.Name)
		if err != nil {
			return "", err
		}
		return owner + memberSep + e.Name + methodSuffix, nil
	case *Field:
		owner, err := declaringName(e.Declaring, e.Name)
		if err != nil {
			return "", err
		}
		return owner + memberSep + e.Name, nil
	case *Constructor:
		// Readers discover constructors by inspecting the class.
		return declaringName(e.Declaring, e.Name)
	case *Package:
		if e.Path == "" {
			return "", fmt.Errorf("%w: package without a path", ErrInvalidLocation)
		}
		return e.Path + packageSuffix, nil
	case nil:
		return "", fmt.Errorf("%w: nil element", ErrInvalidLocation)
	}
	return "", fmt.Errorf("%w: unsupported element %T", ErrInvalidLocation, e)
}

func declaringName(c *Class, member string) (string, error) {
	if c == nil || c.Name == "" {
		return "", fmt.Errorf("%w: member %q has no declaring class", ErrInvalidLocation, member)
	}
	if member == "" {
		return "", fmt.Errorf("%w: member of %s without a name", ErrInvalidLocation, c.BinaryName())
	}
	return c.BinaryName(), nil
}

// Loc is a decoded location string.
type Loc struct {
	// Class is the binary class name. Empty for package locations.
	Class string
	// Member is the field or method name, if any.
	Member string
	// Method is true for "class#member()".
	Method bool
	// Package is the import path of a "pkg.*" location.
	Package string
}

// IsPackage reports whether the location names a package.
func (l Loc) IsPackage() bool { return l.Package != "" }

// IsMember reports whether the location names a field or method.
func (l Loc) IsMember() bool { return l.Member != "" }

// String re-encodes the location.
func (l Loc) String() string {
	switch {
	case l.IsPackage():
		return l.Package + packageSuffix
	case l.Method:
		return l.Class + memberSep + l.Member + methodSuffix
	case l.IsMember():
		return l.Class + memberSep + l.Member
	}
	return l.Class
}

// ParseLocation decodes a location string.
func ParseLocation(s string) (Loc, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Loc{}, fmt.Errorf("%w: empty", ErrInvalidLocation)
	}
	if pkg, ok := strings.CutSuffix(s, packageSuffix); ok {
		if pkg == "" || strings.Contains(pkg, memberSep) {
			return Loc{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
		}
		return Loc{Package: pkg}, nil
	}
	class, member, isMember := strings.Cut(s, memberSep)
	if class == "" {
		return Loc{}, fmt.Errorf("%w: %q has no class", ErrInvalidLocation, s)
	}
	if !isMember {
		return Loc{Class: class}, nil
	}
	name, method := strings.CutSuffix(member, methodSuffix)
	if name == "" || strings.ContainsAny(name, "#()") {
		return Loc{}, fmt.Errorf("%w: %q has a malformed member", ErrInvalidLocation, s)
	}
	return Loc{Class: class, Member: name, Method: method}, nil
}

// SplitBinaryName splits "<import path>.<TypeName>" at its last dot.
func SplitBinaryName(name string) (pkg, typ string, ok bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	// The dot must come after the last path separator.
	if strings.LastIndex(name, "/") > i {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
