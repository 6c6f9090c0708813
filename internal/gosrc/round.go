package gosrc

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/indexer"
)

var (
	_ indexer.Round = (*Round)(nil)
	_ indexer.Round = FinalRound{}
)

// Round presents a batch of packages to the processor.
type Round struct {
	types       []*element.Class
	annotated   map[string][]element.Element
	errorRaised func() bool
}

// NewRound builds the round for batch. Classes of prog are consulted to
// resolve annotation types and inheritance. Syntax errors and annotations
// the index cannot use are reported to messager. errorRaised may be nil.
func NewRound(prog *Program, batch []*Package, messager indexer.Messager, errorRaised func() bool) *Round {
	r := &Round{
		annotated:   make(map[string][]element.Element),
		errorRaised: errorRaised,
	}
	report := func(d indexer.Diagnostic) {
		if messager != nil {
			messager.Report(d)
		}
	}

	batch = slices.Clone(batch)
	slices.SortFunc(batch, func(a, b *Package) int { return strings.Compare(a.ImportPath, b.ImportPath) })

	prog.InheritAll()

	firstUse := make(map[string]element.Element)
	for _, pkg := range batch {
		for _, f := range pkg.Files {
			if f.HasError {
				report(indexer.Diagnostic{
					Kind:    indexer.DiagnosticError,
					Message: fmt.Sprintf("%s: syntax errors", f.Path),
					Err: errors.New(errors.ErrCodeSyntax, "syntax errors in "+f.Path, nil).
						WithDetail("path", f.Path),
				})
			}
		}

		for _, e := range pkg.Elements() {
			for _, a := range e.Mirrors() {
				if strings.HasPrefix(a.Type, element.MetaQualifier+".") {
					continue
				}
				if _, ok := firstUse[a.Type]; !ok {
					firstUse[a.Type] = e
				}
				r.annotated[a.Type] = append(r.annotated[a.Type], e)
			}
		}

		for _, u := range pkg.Unsupported {
			for _, a := range u.Annotations {
				at, ok := prog.Class(a.Type)
				if _, indexed := element.MarkerOf(at); !ok || !indexed {
					continue
				}
				report(indexer.Diagnostic{
					Kind:    indexer.DiagnosticWarning,
					Message: fmt.Sprintf("%s: @%s on %s %s is not indexed", u.Position, a.Type, u.Kind, u.Name),
					Err: errors.New(errors.ErrCodeUnsupportedElement,
						fmt.Sprintf("%s %s cannot carry an indexed annotation", u.Kind, u.Name), nil),
				})
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(r.annotated)) {
		at, ok := prog.Class(name)
		if !ok {
			report(indexer.Diagnostic{
				Kind:    indexer.DiagnosticWarning,
				Message: fmt.Sprintf("cannot resolve annotation type %s", name),
				Element: firstUse[name],
				Err: errors.New(errors.ErrCodeInvalidAnnotation, "unresolved annotation type "+name, nil).
					WithSuggestion("Import the package declaring the annotation or add its module as a dependency root"),
			})
			continue
		}
		r.types = append(r.types, at)
	}
	return r
}

// AnnotationTypes returns the resolved annotation types used in the batch,
// sorted by binary name.
func (r *Round) AnnotationTypes() []*element.Class { return r.types }

// AnnotatedWith returns the declarations carrying annotation in package
// and source order.
func (r *Round) AnnotatedWith(annotation string) []element.Element {
	return r.annotated[annotation]
}

// AllMirrors returns the direct and inherited annotations of e.
func (r *Round) AllMirrors(e element.Element) element.Annotations {
	if e == nil {
		return nil
	}
	return e.Mirrors()
}

func (r *Round) ProcessingOver() bool { return false }

func (r *Round) ErrorRaised() bool {
	return r.errorRaised != nil && r.errorRaised()
}

// FinalRound is the closing round of a build.
type FinalRound struct {
	Errors bool
}

func (FinalRound) AnnotationTypes() []*element.Class              { return nil }
func (FinalRound) AnnotatedWith(string) []element.Element         { return nil }
func (FinalRound) AllMirrors(element.Element) element.Annotations { return nil }
func (FinalRound) ProcessingOver() bool                           { return true }
func (f FinalRound) ErrorRaised() bool                            { return f.Errors }
