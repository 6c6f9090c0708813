package index

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	annerrors "github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

const annA = "some.pkg.A"

// memResource is an in-memory Resource.
type memResource struct {
	name    string
	data    string
	openErr error
}

func (r memResource) Name() string { return r.name }

func (r memResource) Open(context.Context) (io.ReadCloser, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return io.NopCloser(bytes.NewReader([]byte(r.data))), nil
}

// fakeSource implements Source over fixed maps and records loads.
type fakeSource struct {
	resources map[string][]Resource
	enumErr   error
	classes   map[string]*element.Class
	packages  map[string]*element.Package
	loadErr   map[string]error
	loaded    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		resources: make(map[string][]Resource),
		classes:   make(map[string]*element.Class),
		packages:  make(map[string]*element.Package),
		loadErr:   make(map[string]error),
	}
}

func (s *fakeSource) Resources(_ context.Context, path string) ([]Resource, error) {
	if s.enumErr != nil {
		return nil, s.enumErr
	}
	return s.resources[path], nil
}

func (s *fakeSource) LoadClass(_ context.Context, name string) (*element.Class, error) {
	s.loaded = append(s.loaded, name)
	if err := s.loadErr[name]; err != nil {
		return nil, err
	}
	c, ok := s.classes[name]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *fakeSource) LoadPackage(_ context.Context, path string) (*element.Package, error) {
	s.loaded = append(s.loaded, path+".*")
	p, ok := s.packages[path]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *fakeSource) index(prefix, data string) {
	path := resource.Path(prefix, annA)
	s.resources[path] = append(s.resources[path], memResource{name: path, data: data})
}

func (s *fakeSource) class(name string, annotated bool) *element.Class {
	pkg, typ, _ := element.SplitBinaryName(name)
	c := &element.Class{Package: pkg, Name: typ}
	if annotated {
		c.Annotations = element.Annotations{{Type: annA}}
	}
	s.classes[name] = c
	return c
}

var onA = element.Annotations{{Type: annA}}

func locationsOf(t *testing.T, elems []element.Element) []string {
	t.Helper()
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		loc, err := element.Location(e)
		require.NoError(t, err)
		out = append(out, e.Kind().String()+" "+loc)
	}
	return out
}

func TestList_UnionsPrefixesAndRoots(t *testing.T) {
	// Given: the same annotation indexed under both prefixes on two roots
	src := newFakeSource()
	src.index(resource.LegacyPrefix, "some.pkg.Stuff\n")
	src.index(resource.ServicePrefix, "some.pkg.MoreStuff\nsome.pkg.Stuff\n")
	src.index(resource.ServicePrefix, "\nsome.pkg.Extra\n")
	src.class("some.pkg.Stuff", true)
	src.class("some.pkg.MoreStuff", true)
	src.class("some.pkg.Extra", true)

	// When: listing
	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)
	got, err := Collect(it)
	require.NoError(t, err)

	// Then: each class appears once, in sorted location order
	assert.Equal(t, []string{
		"class some.pkg.Extra",
		"class some.pkg.MoreStuff",
		"class some.pkg.Stuff",
	}, locationsOf(t, got))
}

func TestList_YieldsClassThenMembers(t *testing.T) {
	// Given: a class annotated itself and on one member of each kind
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.Stuff\nsome.pkg.Stuff#Name\nsome.pkg.Stuff#Run()\n")
	stuff := src.class("some.pkg.Stuff", true)
	stuff.Methods = []*element.Method{
		{Declaring: stuff, Name: "Other"},
		{Declaring: stuff, Name: "Run", Annotations: onA},
	}
	stuff.Fields = []*element.Field{{Declaring: stuff, Name: "Name", Annotations: onA}}
	stuff.Constructors = []*element.Constructor{{Declaring: stuff, Name: "NewStuff", Annotations: onA}}

	// When: listing
	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)
	got, err := Collect(it)
	require.NoError(t, err)

	// Then: the class, then methods, fields and constructors, without duplicates
	require.Len(t, got, 4)
	assert.Same(t, stuff, got[0])
	assert.Equal(t, "Run", got[1].SimpleName())
	assert.Equal(t, element.KindMethod, got[1].Kind())
	assert.Equal(t, "Name", got[2].SimpleName())
	assert.Equal(t, element.KindConstructor, got[3].Kind())
	assert.Equal(t, []string{"some.pkg.Stuff"}, src.loaded, "class is loaded once")
}

func TestList_ConstructorOnly(t *testing.T) {
	// Given: OnConst used on a single constructor of Stuff
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.Stuff\n")
	stuff := src.class("some.pkg.Stuff", false)
	stuff.Constructors = []*element.Constructor{{Declaring: stuff, Name: "NewStuff", Annotations: onA}}

	// When: listing
	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)
	got, err := Collect(it)
	require.NoError(t, err)

	// Then: exactly one constructor whose declaring class is Stuff
	require.Len(t, got, 1)
	ctor, ok := got[0].(*element.Constructor)
	require.True(t, ok)
	assert.Same(t, stuff, ctor.Declaring)
}

func TestList_Package(t *testing.T) {
	// Given: OnPackage applied at package level
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.*\n")
	pkg := &element.Package{Path: "some.pkg", Name: "pkg", Annotations: onA}
	src.packages["some.pkg"] = pkg

	// When: listing
	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)
	got, err := Collect(it)
	require.NoError(t, err)

	// Then: exactly one package element
	require.Len(t, got, 1)
	assert.Same(t, pkg, got[0])
}

func TestList_SkipsUnresolvableEntries(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", ErrNotFound},
		{"linkage", &LinkageError{Name: "some.pkg.B", Err: errors.New("embedded type missing")}},
		{"coded linkage", annerrors.New(annerrors.ErrCodeLinkage, "denied", nil)},
		{"other", errors.New("access denied")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: three classes, the middle one failing to load
			src := newFakeSource()
			src.index(resource.ServicePrefix, "some.pkg.A1\nsome.pkg.B\nsome.pkg.C\n")
			src.class("some.pkg.A1", true)
			src.class("some.pkg.C", true)
			src.loadErr["some.pkg.B"] = tt.err

			// When: listing
			it, err := List(context.Background(), annA, src)
			require.NoError(t, err)
			got, err := Collect(it)

			// Then: the others are yielded in order and no error surfaces
			require.NoError(t, err)
			assert.Equal(t, []string{"class some.pkg.A1", "class some.pkg.C"}, locationsOf(t, got))
		})
	}
}

func TestList_SkipsMissingPackageAndMalformedLines(t *testing.T) {
	src := newFakeSource()
	src.index(resource.ServicePrefix, "gone.pkg.*\nsome.pkg.Stuff#\nsome.pkg.Stuff\n")
	src.class("some.pkg.Stuff", true)

	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)
	got, err := Collect(it)

	require.NoError(t, err)
	assert.Equal(t, []string{"class some.pkg.Stuff"}, locationsOf(t, got))
}

func TestList_LogsMalformedLineWithCode(t *testing.T) {
	// Given: an index holding a malformed line
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.Stuff#\n")
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	// When: listing it
	it, err := List(context.Background(), annA, src, WithLogger(logger))
	require.NoError(t, err)
	_, err = Collect(it)

	// Then: the skip is logged with the invalid location code
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "skipping malformed index entry")
	assert.Contains(t, buf.String(), annerrors.ErrCodeInvalidLocation)
	assert.Contains(t, buf.String(), `"location":"some.pkg.Stuff#"`)
}

func TestList_EnumerationErrorPropagates(t *testing.T) {
	src := newFakeSource()
	src.enumErr = errors.New("permission denied")

	_, err := List(context.Background(), annA, src)

	require.Error(t, err)
	assert.True(t, annerrors.HasCode(err, annerrors.ErrCodeResourceEnum))
}

func TestList_ReadErrorPropagates(t *testing.T) {
	src := newFakeSource()
	path := resource.Path(resource.ServicePrefix, annA)
	src.resources[path] = []Resource{memResource{name: path, openErr: errors.New("corrupt archive")}}

	_, err := List(context.Background(), annA, src)

	require.Error(t, err)
	assert.True(t, annerrors.HasCode(err, annerrors.ErrCodeResourceRead))
}

func TestList_IsLazy(t *testing.T) {
	// Given: three indexed classes
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.A1\nsome.pkg.B\nsome.pkg.C\n")
	src.class("some.pkg.A1", true)
	src.class("some.pkg.B", true)
	src.class("some.pkg.C", true)

	// When: only the first element is pulled
	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)
	assert.Empty(t, src.loaded, "nothing is loaded before iteration")
	require.True(t, it.Next())

	// Then: only the first class was loaded
	assert.Equal(t, []string{"some.pkg.A1"}, src.loaded)
	assert.Equal(t, 2, it.Remaining())
}

func TestList_EmptyIndex(t *testing.T) {
	it, err := List(context.Background(), annA, newFakeSource())
	require.NoError(t, err)

	assert.False(t, it.Next())
	assert.Nil(t, it.Element())
	assert.NoError(t, it.Err())
}

func TestList_StopsOnCancellation(t *testing.T) {
	// Given: an iterator whose context is cancelled after the first element
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.A1\nsome.pkg.B\n")
	src.class("some.pkg.A1", true)
	src.class("some.pkg.B", true)
	ctx, cancel := context.WithCancel(context.Background())
	it, err := List(ctx, annA, src)
	require.NoError(t, err)
	require.True(t, it.Next())

	// When: cancelled
	cancel()

	// Then: iteration stops with the context error
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
	assert.Equal(t, []string{"some.pkg.A1"}, src.loaded)
}

func TestIterator_AllStopsEarly(t *testing.T) {
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.A1\nsome.pkg.B\n")
	src.class("some.pkg.A1", true)
	src.class("some.pkg.B", true)

	it, err := List(context.Background(), annA, src)
	require.NoError(t, err)

	var names []string
	for e := range it.All() {
		names = append(names, e.SimpleName())
		break
	}

	assert.Equal(t, []string{"A1"}, names)
	assert.Equal(t, []string{"some.pkg.A1"}, src.loaded)
}

func TestLocations_WithPrefixes(t *testing.T) {
	src := newFakeSource()
	src.index(resource.LegacyPrefix, "some.pkg.Old\n")
	src.index(resource.ServicePrefix, "some.pkg.New\n")

	got, err := Locations(context.Background(), annA, src, WithPrefixes(resource.ServicePrefix))

	require.NoError(t, err)
	assert.Equal(t, []string{"some.pkg.New"}, got)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(annerrors.New(annerrors.ErrCodeClassNotFound, "x", nil)))
	assert.False(t, IsNotFound(&LinkageError{Name: "x", Err: errors.New("y")}))
}
