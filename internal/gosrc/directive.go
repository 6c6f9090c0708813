package gosrc

import (
	"regexp"
	"strings"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// directivePattern matches one annotation directive line after the
// comment marker has been stripped: "@Name", "@alias.Name(args)" or
// "@example.com/pkg.Name(args)".
var directivePattern = regexp.MustCompile(`^@([A-Za-z_](?:[\w./-]*\w)?)(?:\((.*)\))?\s*$`)

// parseDirectives extracts annotations from comment texts. The returned
// annotation types are raw names, resolved later against file imports.
func parseDirectives(comments []string) element.Annotations {
	var out element.Annotations
	for _, c := range comments {
		for _, line := range commentLines(c) {
			m := directivePattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			out = append(out, element.Annotation{Type: m[1], Args: parseArgs(m[2])})
		}
	}
	return out
}

// commentLines returns the text lines of a line or block comment with
// comment markers and decoration stripped.
func commentLines(c string) []string {
	if s, ok := strings.CutPrefix(c, "//"); ok {
		return []string{strings.TrimSpace(s)}
	}
	s := strings.TrimSuffix(strings.TrimPrefix(c, "/*"), "*/")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		l = strings.TrimSpace(l)
		lines[i] = strings.TrimSpace(strings.TrimPrefix(l, "*"))
	}
	return lines
}

// parseArgs parses "value", "k=v" or "k1=v1,k2=v2". A segment without
// "=" after a keyed segment continues the previous value, so list values
// such as "validators=a,b" stay intact.
func parseArgs(s string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	args := make(map[string]string)
	last := ""
	for _, seg := range strings.Split(s, ",") {
		key, value, keyed := strings.Cut(seg, "=")
		if keyed && isArgKey(strings.TrimSpace(key)) {
			last = strings.TrimSpace(key)
			args[last] = unquote(strings.TrimSpace(value))
			continue
		}
		seg = unquote(strings.TrimSpace(seg))
		if last == "" {
			last = element.ValueArg
			args[last] = seg
			continue
		}
		args[last] += "," + seg
	}
	return args
}

func isArgKey(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '`' && s[len(s)-1] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}

// leadingComments returns the comment nodes forming the doc comment of
// siblings[i]: the adjacent run of comments directly above it, excluding
// a trailing comment that shares a line with the previous declaration.
func leadingComments(siblings []*Node, i int, source []byte) []string {
	var out []string
	row := siblings[i].StartPoint.Row
	for j := prevDecl(siblings, i); j >= 0; j = prevDecl(siblings, j) {
		s := siblings[j]
		if s.Type != "comment" || s.EndPoint.Row+1 != row {
			break
		}
		if k := prevDecl(siblings, j); k >= 0 && siblings[k].Type != "comment" && siblings[k].EndPoint.Row == s.StartPoint.Row {
			break
		}
		out = append(out, s.Content(source))
		row = s.StartPoint.Row
	}
	// Collected bottom-up.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// prevDecl returns the index of the sibling before i, skipping
// statement terminators, or -1.
func prevDecl(siblings []*Node, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !siblings[j].IsTerminator() {
			return j
		}
	}
	return -1
}
