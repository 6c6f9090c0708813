package preflight

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinDiskSpaceBytes is the minimum free space where the output is written.
const MinDiskSpaceBytes = 10 * 1024 * 1024

// CheckDiskSpace checks the free space of the file system holding the
// output, or of its nearest existing parent before the first build.
func (c *Checker) CheckDiskSpace(output string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	dir := existingParent(output)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat file system of %s: %v", dir, err)
		return result
	}

	available := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free, %s needed", humanize.IBytes(available), humanize.IBytes(MinDiskSpaceBytes))
	if c.verbose {
		result.Details = "checked " + dir
	}
	result.Status = StatusPass
	if available < MinDiskSpaceBytes {
		result.Status = StatusFail
	}
	return result
}
