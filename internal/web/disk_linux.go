//go:build linux

package web

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

func snapshotDisk(outputPath string) *DiskSnapshot {
	dir := filepath.Dir(outputPath)
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return &DiskSnapshot{Path: dir, LastError: err.Error()}
	}

	bsize := uint64(st.Bsize)
	return &DiskSnapshot{
		Path:       dir,
		TotalBytes: st.Blocks * bsize,
		FreeBytes:  st.Bfree * bsize,
		AvailBytes: st.Bavail * bsize,
	}
}
