// Package resource defines the on-disk index resource format shared by
// the write and read paths.
//
// One resource exists per indexable annotation, at
// "<prefix><annotation identity>". Its content is UTF-8 text with one
// location per line, sorted ascending and "\n"-terminated, without a
// header.
package resource

import (
	"bufio"
	"bytes"
	"io"
	"maps"
	"slices"
	"strings"
)

// Namespace prefixes. Readers probe both; writers use WritePrefix unless
// configured for legacy output.
const (
	LegacyPrefix  = "META-INF/annotations/"
	ServicePrefix = "META-INF/services/annotations/"

	WritePrefix = ServicePrefix
)

// Prefixes is the ordered list of prefixes probed on read.
var Prefixes = []string{LegacyPrefix, ServicePrefix}

// Path returns the resource path of an annotation under a prefix.
func Path(prefix, annotation string) string {
	return prefix + annotation
}

// AnnotationOf returns the annotation identity named by a resource path
// under any known prefix.
func AnnotationOf(path string) (string, bool) {
	path = strings.TrimPrefix(path, "/")
	for _, p := range Prefixes {
		if name, ok := strings.CutPrefix(path, p); ok && name != "" && !strings.HasSuffix(name, "/") {
			return name, true
		}
	}
	return "", false
}

// IsPrefix reports whether s is a known namespace prefix.
func IsPrefix(s string) bool {
	return slices.Contains(Prefixes, s)
}

// LocationSet is a set of location strings with sorted iteration.
// The zero value is ready to use.
type LocationSet struct {
	m map[string]struct{}
}

// NewLocationSet returns a set holding locs.
func NewLocationSet(locs ...string) *LocationSet {
	s := &LocationSet{}
	for _, l := range locs {
		s.Add(l)
	}
	return s
}

// Add inserts loc and reports whether it was new. Empty strings are ignored.
func (s *LocationSet) Add(loc string) bool {
	if loc == "" {
		return false
	}
	if s.m == nil {
		s.m = make(map[string]struct{})
	}
	if _, ok := s.m[loc]; ok {
		return false
	}
	s.m[loc] = struct{}{}
	return true
}

// Remove deletes loc and reports whether it was present.
func (s *LocationSet) Remove(loc string) bool {
	if _, ok := s.m[loc]; !ok {
		return false
	}
	delete(s.m, loc)
	return true
}

// Contains reports whether loc is in the set.
func (s *LocationSet) Contains(loc string) bool {
	_, ok := s.m[loc]
	return ok
}

// Len returns the number of locations.
func (s *LocationSet) Len() int {
	return len(s.m)
}

// Merge adds every location of other.
func (s *LocationSet) Merge(other *LocationSet) {
	if other == nil {
		return
	}
	for l := range other.m {
		s.Add(l)
	}
}

// Sorted returns the locations in ascending byte order.
func (s *LocationSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s.m))
}

// ReadLocations adds every non-empty line of r to set. Trailing carriage
// returns and surrounding blanks are stripped.
func ReadLocations(r io.Reader, set *LocationSet) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		set.Add(strings.TrimSpace(sc.Text()))
	}
	return sc.Err()
}

// WriteLocations writes the set in canonical form.
func WriteLocations(w io.Writer, set *LocationSet) error {
	_, err := w.Write(Encode(set))
	return err
}

// Encode returns the canonical resource content of a set.
func Encode(set *LocationSet) []byte {
	var buf bytes.Buffer
	for _, l := range set.Sorted() {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
