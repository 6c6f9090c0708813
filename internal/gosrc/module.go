package gosrc

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Module is a Go module rooted at a directory.
type Module struct {
	// Dir is the absolute directory containing go.mod.
	Dir string
	// Path is the module path from the module directive.
	Path string
}

// ModulePath returns the module path declared in go.mod content.
func ModulePath(gomod []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(gomod))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		rest, ok := strings.CutPrefix(line, "module")
		if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t' && rest[0] != '"') {
			continue
		}
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, `"`) || strings.HasPrefix(rest, "`") {
			unq, err := strconv.Unquote(rest)
			if err != nil {
				return "", fmt.Errorf("malformed module directive %q: %w", line, err)
			}
			rest = unq
		}
		if rest == "" {
			break
		}
		return rest, nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no module directive found")
}

// FindModule walks up from dir to the nearest go.mod.
func FindModule(dir string) (Module, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Module{}, err
	}
	for d := abs; ; {
		data, err := os.ReadFile(filepath.Join(d, "go.mod"))
		if err == nil {
			mp, err := ModulePath(data)
			if err != nil {
				return Module{}, fmt.Errorf("%s: %w", filepath.Join(d, "go.mod"), err)
			}
			return Module{Dir: d, Path: mp}, nil
		}
		if !os.IsNotExist(err) {
			return Module{}, err
		}
		parent := filepath.Dir(d)
		if parent == d {
			return Module{}, fmt.Errorf("no go.mod found above %s", abs)
		}
		d = parent
	}
}

// ImportPath returns the import path of a package directory inside the
// module.
func (m Module) ImportPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(m.Dir, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return m.Path, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside module %s", dir, m.Path)
	}
	return path.Join(m.Path, filepath.ToSlash(rel)), nil
}

// PackageDir returns the directory of an import path inside the module.
func (m Module) PackageDir(importPath string) (string, bool) {
	if importPath == m.Path {
		return m.Dir, true
	}
	rel, ok := strings.CutPrefix(importPath, m.Path+"/")
	if !ok || rel == "" {
		return "", false
	}
	return filepath.Join(m.Dir, filepath.FromSlash(rel)), true
}

// Contains reports whether importPath belongs to the module.
func (m Module) Contains(importPath string) bool {
	_, ok := m.PackageDir(importPath)
	return ok
}

// defaultPackageName guesses the package name of an import path from its
// last element, skipping major version suffixes and common "go-" affixes.
func defaultPackageName(importPath string) string {
	elems := strings.Split(importPath, "/")
	name := elems[len(elems)-1]
	if len(elems) > 1 && isMajorVersion(name) {
		name = elems[len(elems)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 && isMajorVersion(name[i+1:]) {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	name = strings.TrimSuffix(strings.TrimSuffix(name, "-go"), ".go")
	return strings.ReplaceAll(name, "-", "")
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}
