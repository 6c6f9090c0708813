package indexer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// fakeRound implements Round over fixed data.
type fakeRound struct {
	types     []*element.Class
	annotated map[string][]element.Element
	over      bool
	errored   bool
}

func (r *fakeRound) AnnotationTypes() []*element.Class { return r.types }

func (r *fakeRound) AnnotatedWith(annotation string) []element.Element {
	return r.annotated[annotation]
}

func (r *fakeRound) AllMirrors(e element.Element) element.Annotations { return e.Mirrors() }
func (r *fakeRound) ProcessingOver() bool                             { return r.over }
func (r *fakeRound) ErrorRaised() bool                                { return r.errored }

// memFiler is an in-memory Filer with failure injection.
type memFiler struct {
	mu          sync.Mutex
	files       map[string][]byte
	readErr     map[string]error
	createErr   map[string]error
	writeErr    map[string]error
	originating map[string][]element.Element
	aborted     []string
}

func newMemFiler() *memFiler {
	return &memFiler{
		files:       make(map[string][]byte),
		readErr:     make(map[string]error),
		createErr:   make(map[string]error),
		writeErr:    make(map[string]error),
		originating: make(map[string][]element.Element),
	}
}

func (f *memFiler) Resource(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[path]; err != nil {
		return nil, err
	}
	data, ok := f.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *memFiler) CreateResource(_ context.Context, path string, originating ...element.Element) (io.WriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[path]; err != nil {
		return nil, err
	}
	f.originating[path] = originating
	return &memWriter{filer: f, path: path, failWith: f.writeErr[path]}, nil
}

func (f *memFiler) content(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	return string(data), ok
}

type memWriter struct {
	filer    *memFiler
	path     string
	buf      bytes.Buffer
	failWith error
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.failWith != nil {
		return 0, w.failWith
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.filer.mu.Lock()
	defer w.filer.mu.Unlock()
	w.filer.files[w.path] = bytes.Clone(w.buf.Bytes())
	return nil
}

func (w *memWriter) Abort() error {
	w.filer.mu.Lock()
	defer w.filer.mu.Unlock()
	w.filer.aborted = append(w.filer.aborted, w.path)
	return nil
}

// recorder collects diagnostics.
type recorder struct {
	diags []Diagnostic
}

func (r *recorder) Report(d Diagnostic) { r.diags = append(r.diags, d) }

func (r *recorder) ofKind(k DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.diags {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

var errDisk = errors.New("input/output error")

// annotationType builds an annotation type declaration with the given
// meta-annotations.
func annotationType(pkg, name string, meta ...element.Annotation) *element.Class {
	return &element.Class{Package: pkg, Name: name, Annotations: meta}
}

func indexed(args map[string]string) element.Annotation {
	return element.Annotation{Type: element.IndexedAnnotation, Args: args}
}

func runtimeRetention() element.Annotation {
	return element.Annotation{Type: element.RetentionAnnotation, Args: map[string]string{element.ValueArg: "runtime"}}
}
