package kml

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrLocked is returned by WriteFile when another writer holds the output
// lock.
var ErrLocked = errors.New("kml: output is locked by another writer")

// kmzEntry is the document name inside a KMZ archive.
const kmzEntry = "doc.kml"

// IsKMZ reports whether path names a zipped KML output.
func IsKMZ(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".kmz")
}

// Encode renders doc as KML, zipped when path ends in .kmz.
func (r *Renderer) Encode(path string, doc Document) ([]byte, error) {
	var kml bytes.Buffer
	if err := r.Render(&kml, doc); err != nil {
		return nil, err
	}
	if !IsKMZ(path) {
		return kml.Bytes(), nil
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	w, err := zw.Create(kmzEntry)
	if err != nil {
		return nil, fmt.Errorf("kml: kmz entry: %w", err)
	}
	if _, err := w.Write(kml.Bytes()); err != nil {
		return nil, fmt.Errorf("kml: kmz write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("kml: kmz close: %w", err)
	}
	return out.Bytes(), nil
}

// WriteFile renders doc and replaces path with the result. Readers see either
// the previous file or the new one, never a partial write. Concurrent writers
// to the same path are refused with ErrLocked.
func (r *Renderer) WriteFile(path string, doc Document) error {
	data, err := r.Encode(path, doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kml: create output directory: %w", err)
	}

	unlock, err := lockOutput(path)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("kml: temp file: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("kml: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("kml: sync temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return fmt.Errorf("kml: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("kml: close temp file: %w", err)
	}
	if err := replaceFile(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// replaceFile moves tmpPath over destPath, removing destPath first on
// platforms where rename does not overwrite.
func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err != nil {
		if removeErr := os.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("kml: remove old output: %w", removeErr)
		}
		if err := os.Rename(tmpPath, destPath); err != nil {
			return fmt.Errorf("kml: replace output: %w", err)
		}
	}
	return nil
}
