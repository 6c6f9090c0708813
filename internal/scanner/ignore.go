package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// Matcher matches slash-separated relative paths against gitignore
// patterns. Later patterns override earlier ones, and a path inside an
// ignored directory stays ignored.
type Matcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	// base limits the rule to paths under a directory, for nested
	// .gitignore files.
	base string
}

// NewMatcher compiles patterns that apply under base ("" for the root).
func NewMatcher(base string, patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(base, p)
	}
	return m
}

// ReadMatcher reads a .gitignore file whose rules apply under base.
func ReadMatcher(file, base string) (*Matcher, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	m := &Matcher{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(base, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}
	return m, nil
}

// Add compiles one pattern line. Blank lines and comments are ignored.
func (m *Matcher) Add(base, pattern string) {
	escapedSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}
	if escapedSpace {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	r := ignoreRule{base: strings.Trim(base, "/")}
	switch {
	case strings.HasPrefix(pattern, `\!`), strings.HasPrefix(pattern, `\#`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	pattern = strings.TrimPrefix(pattern, "**/")
	if strings.HasPrefix(pattern, "/") {
		pattern = pattern[1:]
		r.anchored = true
	} else if strings.Contains(pattern, "/") {
		r.anchored = true
	}
	if pattern == "" {
		return
	}

	r.re = regexp.MustCompile("^" + globToRegex(pattern) + "$")
	m.rules = append(m.rules, r)
}

// Match reports whether relPath, or any directory above it, is ignored.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	relPath = strings.Trim(relPath, "/")
	parts := strings.Split(relPath, "/")
	for i := 1; i < len(parts); i++ {
		if ignored, _ := m.verdict(strings.Join(parts[:i], "/"), true); ignored {
			return true
		}
	}
	ignored, _ := m.verdict(relPath, isDir)
	return ignored
}

// verdict applies the rules to p alone. matched is false when no rule
// applies, so callers can layer matchers.
func (m *Matcher) verdict(p string, isDir bool) (ignored, matched bool) {
	if m == nil {
		return false, false
	}
	for _, r := range m.rules {
		rel := p
		if r.base != "" {
			var ok bool
			if rel, ok = strings.CutPrefix(p, r.base+"/"); !ok {
				continue
			}
		}
		if r.dirOnly && !isDir {
			continue
		}
		target := rel
		if !r.anchored {
			target = path.Base(rel)
		}
		if r.re.MatchString(target) {
			ignored, matched = !r.negate, true
		}
	}
	return ignored, matched
}

// globToRegex translates gitignore glob syntax: "*" and "?" stay within
// one path element, "**" crosses elements.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if strings.HasPrefix(glob[i:], "**") {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
