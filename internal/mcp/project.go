package mcp

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/annodex/internal/gosrc"
)

// ProjectDetector detects the Go module or workspace served by the server.
type ProjectDetector struct {
	rootPath string
	logger   *slog.Logger
}

// NewProjectDetector creates a new project detector.
func NewProjectDetector(rootPath string, logger *slog.Logger) *ProjectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectDetector{
		rootPath: rootPath,
		logger:   logger,
	}
}

// Detect returns project information detected from the project directory.
// Detection order: go.mod -> go.work -> directory name.
func (d *ProjectDetector) Detect() *ProjectInfo {
	info := &ProjectInfo{
		RootPath: d.rootPath,
		Name:     filepath.Base(d.rootPath),
		Type:     "unknown",
	}
	if d.rootPath == "" {
		return info
	}

	if name := d.detectGoMod(); name != "" {
		info.Name = name
		info.Type = "module"
		return info
	}

	if uses := d.detectGoWork(); uses > 0 {
		info.Type = "workspace"
		return info
	}

	return info
}

func (d *ProjectDetector) detectGoMod() string {
	data, err := os.ReadFile(filepath.Join(d.rootPath, "go.mod"))
	if err != nil {
		return ""
	}
	path, err := gosrc.ModulePath(data)
	if err != nil {
		d.logger.Debug("unreadable go.mod", slog.String("root", d.rootPath), slog.String("error", err.Error()))
		return ""
	}
	return path
}

// detectGoWork counts the use directives of go.work.
func (d *ProjectDetector) detectGoWork() int {
	file, err := os.Open(filepath.Join(d.rootPath, "go.work"))
	if err != nil {
		return 0
	}
	defer func() { _ = file.Close() }()

	uses := 0
	inBlock := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "//"):
		case strings.HasPrefix(line, "use ("):
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock:
			uses++
		case strings.HasPrefix(line, "use "):
			uses++
		}
	}
	return uses
}
