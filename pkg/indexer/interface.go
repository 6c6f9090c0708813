package indexer

import (
	"context"
	"fmt"
	"io"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/element"
)

// Round is one processing round of a build.
type Round interface {
	// AnnotationTypes returns the annotation types used by declarations
	// in this round.
	AnnotationTypes() []*element.Class

	// AnnotatedWith returns every declaration carrying the annotation,
	// directly or through inheritance, in a stable order.
	AnnotatedWith(annotation string) []element.Element

	// AllMirrors returns every annotation present on e, inherited ones
	// included.
	AllMirrors(e element.Element) element.Annotations

	// ProcessingOver is true for the final round, which carries no
	// declarations.
	ProcessingOver() bool

	// ErrorRaised reports whether the build reported errors.
	ErrorRaised() bool
}

// Filer reads and creates resources in the build output.
type Filer interface {
	// Resource opens an existing resource. A missing resource yields an
	// error matching fs.ErrNotExist.
	Resource(ctx context.Context, path string) (io.ReadCloser, error)

	// CreateResource creates or replaces a resource. The originating
	// declarations tie the resource to the sources that produced it.
	// Content becomes visible when the writer is closed.
	CreateResource(ctx context.Context, path string, originating ...element.Element) (io.WriteCloser, error)
}

// Aborter is implemented by resource writers that can discard their
// content instead of committing it on Close.
type Aborter interface {
	Abort() error
}

// Messager receives build diagnostics.
type Messager interface {
	Report(d Diagnostic)
}

// MessagerFunc adapts a function to Messager.
type MessagerFunc func(d Diagnostic)

// Report calls f(d).
func (f MessagerFunc) Report(d Diagnostic) { f(d) }

// DiagnosticKind is the severity of a diagnostic.
type DiagnosticKind int

const (
	DiagnosticError DiagnosticKind = iota + 1
	DiagnosticWarning
	DiagnosticNote
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticError:
		return "error"
	case DiagnosticWarning:
		return "warning"
	case DiagnosticNote:
		return "note"
	}
	return fmt.Sprintf("diagnostic(%d)", int(k))
}

// Diagnostic is a message about the build, optionally tied to an element.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
	Element element.Element
	// Err carries the structured error, if any.
	Err error
}

// Code returns the error code of the diagnostic, or "".
func (d Diagnostic) Code() string {
	return errors.GetCode(d.Err)
}

func (d Diagnostic) String() string {
	if d.Element != nil && d.Element.Pos().IsValid() {
		return fmt.Sprintf("%s: %s: %s", d.Element.Pos(), d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}
