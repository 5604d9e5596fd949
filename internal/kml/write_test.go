package kml

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func TestWriteFile_KML(t *testing.T) {
	doc, err := testBuilder().Build(testNow, []DeploymentData{testData()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "active_deployments.kml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	r := newTestRenderer(t)
	if err := r.WriteFile(path, doc); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var want bytes.Buffer
	if err := r.Render(&want, doc); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Fatalf("file content differs from Render output")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".active_deployments.kml-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteFile_KMZ(t *testing.T) {
	doc, err := testBuilder().Build(testNow, []DeploymentData{testData()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "active_deployments.kmz")
	if err := newTestRenderer(t).WriteFile(path, doc); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("zip.OpenReader() error: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "doc.kml" {
		t.Fatalf("kmz entries=%d first=%q", len(zr.File), zr.File[0].Name)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if !strings.Contains(string(body), "<name>Last 24 Hours</name>") {
		t.Fatalf("kmz doc.kml missing content")
	}
}

func TestIsKMZ(t *testing.T) {
	cases := map[string]bool{
		"out.kmz":       true,
		"out.KMZ":       true,
		"out.kml":       false,
		"dir.kmz/x.kml": false,
	}
	for path, want := range cases {
		if got := IsKMZ(path); got != want {
			t.Fatalf("IsKMZ(%q)=%v want %v", path, got, want)
		}
	}
}
