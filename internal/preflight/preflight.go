package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// DiskUsage summarizes a filesystem's capacity at a path.
type DiskUsage struct {
	TotalBytes  uint64
	FreeBytes   uint64
	FreePercent float64
}

// statfs is swappable in tests.
var statfs = func(path string) (total, free uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return stat.Blocks * bsize, stat.Bavail * bsize, nil
}

// Disk samples free space for the filesystem containing path.
func Disk(path string) (DiskUsage, error) {
	total, free, err := statfs(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	usage := DiskUsage{TotalBytes: total, FreeBytes: free}
	if total > 0 {
		usage.FreePercent = float64(free) / float64(total) * 100
	}
	return usage, nil
}

// CheckDirectoryAccess verifies the directory exists and is readable and
// writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the archive filesystem has at least
// requiredBytes available.
func CheckFreeSpace(name, path string, requiredBytes uint64) Result {
	usage, err := Disk(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if usage.FreeBytes < requiredBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d bytes, %d free)", path, requiredBytes, usage.FreeBytes)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%.1f%% free)", path, usage.FreePercent)}
}

// RunAll executes the import preflight suite against the archive root.
// requiredBytes is the batch's total source size; zero skips the space
// requirement and only samples usage.
func RunAll(archiveRoot string, requiredBytes uint64) []Result {
	return []Result{
		CheckDirectoryAccess("Archive directory", archiveRoot),
		CheckFreeSpace("Archive free space", archiveRoot, requiredBytes),
	}
}

// Passed reports whether every result in the set passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
