package element

import (
	"fmt"
	"slices"
	"strings"
)

// Reserved meta-annotation identities.
const (
	MetaQualifier       = "annodex"
	IndexedAnnotation   = MetaQualifier + ".Indexed"
	RetentionAnnotation = MetaQualifier + ".Retention"
	InheritedAnnotation = MetaQualifier + ".Inherited"
)

// ValueArg is the argument key used for a single unnamed argument,
// as in "@annodex.Retention(runtime)".
const ValueArg = "value"

// Annotation is one annotation instance present on an element.
type Annotation struct {
	// Type is the annotation identity, "<import path>.<TypeName>".
	Type string
	Args map[string]string
	// Inherited is true when the annotation was propagated through
	// struct embedding rather than written on the element itself.
	Inherited bool
}

// Arg returns the named argument.
func (a Annotation) Arg(key string) (string, bool) {
	v, ok := a.Args[key]
	return v, ok
}

func (a Annotation) String() string {
	if len(a.Args) == 0 {
		return "@" + a.Type
	}
	keys := make([]string, 0, len(a.Args))
	for k := range a.Args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + a.Args[k]
	}
	return "@" + a.Type + "(" + strings.Join(parts, ",") + ")"
}

// Annotations is the list of annotations on an element, in source order.
type Annotations []Annotation

// Find returns the first annotation with the given identity.
func (as Annotations) Find(typ string) (Annotation, bool) {
	for _, a := range as {
		if a.Type == typ {
			return a, true
		}
	}
	return Annotation{}, false
}

// Has reports whether an annotation with the given identity is present.
func (as Annotations) Has(typ string) bool {
	_, ok := as.Find(typ)
	return ok
}

// Direct returns the annotations written on the element itself.
func (as Annotations) Direct() Annotations {
	out := make(Annotations, 0, len(as))
	for _, a := range as {
		if !a.Inherited {
			out = append(out, a)
		}
	}
	return out
}

// Retention says how long an annotation stays visible.
type Retention int

const (
	RetentionSource Retention = iota + 1
	RetentionClass
	RetentionRuntime
)

func (r Retention) String() string {
	switch r {
	case RetentionSource:
		return "source"
	case RetentionClass:
		return "class"
	case RetentionRuntime:
		return "runtime"
	}
	return fmt.Sprintf("retention(%d)", int(r))
}

// ParseRetention parses "source", "class" or "runtime", case-insensitively.
func ParseRetention(s string) (Retention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source":
		return RetentionSource, nil
	case "class":
		return RetentionClass, nil
	case "runtime":
		return RetentionRuntime, nil
	}
	return 0, fmt.Errorf("unknown retention %q", s)
}

// Marker is the indexable flag on an annotation type.
type Marker struct {
	// Validators names the checks run on every use of the annotation.
	Validators []string
}

// MarkerOf returns the indexable marker of an annotation type, if present.
func MarkerOf(c *Class) (Marker, bool) {
	if c == nil {
		return Marker{}, false
	}
	a, ok := c.Annotations.Find(IndexedAnnotation)
	if !ok {
		return Marker{}, false
	}
	var m Marker
	if v, ok := a.Arg("validators"); ok {
		m.Validators = splitList(v)
	}
	return m, true
}

// RetentionOf returns the declared retention of an annotation type.
// Types without a valid declaration default to RetentionClass.
func RetentionOf(c *Class) Retention {
	if c == nil {
		return RetentionClass
	}
	a, ok := c.Annotations.Find(RetentionAnnotation)
	if !ok {
		return RetentionClass
	}
	v, ok := a.Arg(ValueArg)
	if !ok {
		return RetentionClass
	}
	r, err := ParseRetention(v)
	if err != nil {
		return RetentionClass
	}
	return r
}

// IsInherited reports whether an annotation type propagates through embedding.
func IsInherited(c *Class) bool {
	return c != nil && c.Annotations.Has(InheritedAnnotation)
}

// splitList splits "a|b,c" into its non-empty trimmed names.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
