//go:build unix

package kml

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestWriteFile_Locked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_deployments.kml")
	unlock, err := lockOutput(path)
	if err != nil {
		t.Fatalf("lockOutput() error: %v", err)
	}

	r := newTestRenderer(t)
	if err := r.WriteFile(path, Document{Name: "x"}); !errors.Is(err, ErrLocked) {
		t.Fatalf("err=%v want ErrLocked", err)
	}

	unlock()
	if err := r.WriteFile(path, Document{Name: "x"}); err != nil {
		t.Fatalf("WriteFile() after unlock error: %v", err)
	}
}
