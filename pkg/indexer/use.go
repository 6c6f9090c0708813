package indexer

import (
	"maps"
	"slices"

	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// Use accumulates the locations of one indexable annotation during a build.
type Use struct {
	// Annotation is the annotation identity.
	Annotation string
	// Locations holds every known location, seeded from the existing
	// resource.
	Locations *resource.LocationSet
	// Originating lists the declarations seen in this build, in
	// discovery order without duplicates.
	Originating []element.Element

	seen      map[element.Element]struct{}
	abandoned bool
}

// NewUse returns an empty accumulator for annotation.
func NewUse(annotation string) *Use {
	return &Use{
		Annotation: annotation,
		Locations:  resource.NewLocationSet(),
		seen:       make(map[element.Element]struct{}),
	}
}

// Add records e and its location.
func (u *Use) Add(e element.Element) error {
	loc, err := element.Location(e)
	if err != nil {
		return err
	}
	u.Locations.Add(loc)
	if _, ok := u.seen[e]; !ok {
		u.seen[e] = struct{}{}
		u.Originating = append(u.Originating, e)
	}
	return nil
}

// Abandoned reports whether generation of this annotation's index was
// given up for the build.
func (u *Use) Abandoned() bool {
	return u.abandoned
}

// Uses maps annotation identities to their accumulators for one build.
type Uses map[string]*Use

// Names returns the annotation identities in sorted order.
func (u Uses) Names() []string {
	return slices.Sorted(maps.Keys(u))
}
