package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

func mixedSource() *fakeSource {
	src := newFakeSource()
	src.index(resource.ServicePrefix, "some.pkg.*\nsome.pkg.Stuff\nsome.pkg.Stuff#Run()\nsome.pkg.Zed#f\n")
	src.packages["some.pkg"] = &element.Package{Path: "some.pkg", Name: "pkg", Annotations: onA}
	stuff := src.class("some.pkg.Stuff", true)
	stuff.Methods = []*element.Method{{Declaring: stuff, Name: "Run", Annotations: onA}}
	zed := src.class("some.pkg.Zed", false)
	zed.Fields = []*element.Field{{Declaring: zed, Name: "f", Annotations: onA}}
	return src
}

func TestListOf_FiltersByType(t *testing.T) {
	// Given: an index with a package, a class, a method and a field
	src := mixedSource()

	// When: listing methods only
	it, err := ListOf[*element.Method](context.Background(), annA, src)
	require.NoError(t, err)

	var got []*element.Method
	for m := range it.All() {
		got = append(got, m)
	}

	// Then: only the method is yielded, typed
	require.NoError(t, it.Err())
	require.Len(t, got, 1)
	assert.Equal(t, "Run", got[0].Name)
}

func TestListOf_Classes(t *testing.T) {
	it, err := ListOf[*element.Class](context.Background(), annA, mixedSource())
	require.NoError(t, err)

	require.True(t, it.Next())
	assert.Equal(t, "some.pkg.Stuff", it.Element().BinaryName())
	assert.False(t, it.Next())
	assert.Nil(t, it.Element())
}

func TestListKind_PreservesOrder(t *testing.T) {
	it, err := ListKind(context.Background(), annA, mixedSource(), []element.Kind{element.KindField, element.KindPackage})
	require.NoError(t, err)

	var kinds []element.Kind
	for e := range it.All() {
		kinds = append(kinds, e.Kind())
	}

	assert.Equal(t, []element.Kind{element.KindPackage, element.KindField}, kinds)
}

func TestFilter_PropagatesListErrors(t *testing.T) {
	src := mixedSource()
	src.enumErr = assert.AnError

	_, err := ListOf[*element.Field](context.Background(), annA, src)

	assert.ErrorIs(t, err, assert.AnError)
}
