package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Aman-CERP/annodex/internal/classpath"
	"github.com/Aman-CERP/annodex/internal/gosrc"
	"github.com/Aman-CERP/annodex/internal/provenance"
)

// classpathTimeout bounds the probe of one classpath entry.
const classpathTimeout = 10 * time.Second

// CheckGoModule checks that root lies in a Go module.
func (c *Checker) CheckGoModule(root string) CheckResult {
	result := CheckResult{
		Name:     "go_module",
		Required: true,
	}

	mod, err := gosrc.FindModule(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("no go.mod at or above %s", root)
		result.Details = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = mod.Path
	result.Details = mod.Dir
	return result
}

// CheckLedger opens the provenance ledger and reports its last build. A
// missing ledger only means nothing was built yet.
func (c *Checker) CheckLedger(ctx context.Context, path string) CheckResult {
	result := CheckResult{
		Name:     "ledger",
		Required: true,
	}

	if _, err := os.Stat(path); err != nil {
		result.Status = StatusWarn
		result.Message = "no build yet"
		result.Details = "Run 'annodex index' to create the index"
		return result
	}

	l, err := provenance.Open(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = "cannot open ledger"
		result.Details = err.Error()
		return result
	}
	defer func() { _ = l.Close() }()

	sum, err := l.Summary(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = "cannot read ledger"
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d files, %d resources, %d locations", sum.Files, sum.Resources, sum.Locations)
	if b := sum.LastBuild; b != nil {
		result.Details = fmt.Sprintf("last build %s: %s %s at %s", b.ID, b.Mode, b.Status, b.StartedAt.Format(time.RFC3339))
		if b.Status != provenance.StatusOK {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("last build %s", b.Status)
			if b.Message != "" {
				result.Details = b.Message
			}
		}
	}
	return result
}

// CheckClasspathEntry opens one classpath entry and counts its indexed
// annotations. An output directory that was never built is a warning.
func (c *Checker) CheckClasspathEntry(ctx context.Context, entry string, isOutput bool, bucket classpath.BucketOptions) CheckResult {
	result := CheckResult{
		Name: "classpath " + entry,
	}

	if isOutput {
		if _, err := os.Stat(entry); err != nil {
			result.Status = StatusWarn
			result.Message = "output not built yet"
			return result
		}
	}

	ctx, cancel := context.WithTimeout(ctx, classpathTimeout)
	defer cancel()

	cp, err := classpath.Open(ctx, []string{entry}, classpath.WithBucketOptions(bucket))
	if err != nil {
		result.Status = StatusFail
		result.Message = "cannot open entry"
		result.Details = err.Error()
		return result
	}
	defer func() { _ = cp.Close() }()

	names, err := cp.Annotations(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = "cannot list index resources"
		result.Details = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d annotation(s) indexed", len(names))
	return result
}
