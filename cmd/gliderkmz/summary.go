package main

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	"gliderkmz/internal/kml"
)

type outputSummary struct {
	Updated     string
	Deployments []deploymentSummary
}

type deploymentSummary struct {
	Name       string
	Placemarks int
}

// summarizeKML walks a rendered document and counts placemarks under each
// top-level deployment folder.
func summarizeKML(r io.Reader) (outputSummary, error) {
	var s outputSummary
	var stack []string
	var cur *deploymentSummary

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			depth := len(stack)
			switch {
			case t.Name.Local == "description" && depth == 3 && s.Updated == "":
				if err := dec.DecodeElement(&s.Updated, &t); err != nil {
					return s, err
				}
				stack = stack[:depth-1]
			case t.Name.Local == "Folder" && depth == 3:
				s.Deployments = append(s.Deployments, deploymentSummary{})
				cur = &s.Deployments[len(s.Deployments)-1]
			case t.Name.Local == "name" && depth == 4 && cur != nil && cur.Name == "":
				if err := dec.DecodeElement(&cur.Name, &t); err != nil {
					return s, err
				}
				stack = stack[:depth-1]
			case t.Name.Local == "Placemark" && cur != nil:
				cur.Placemarks++
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == "Folder" && len(stack) == 2 {
				cur = nil
			}
		}
	}
}

// readOutput returns the KML text of a .kml file or the doc.kml entry of a
// .kmz archive.
func readOutput(path string) ([]byte, error) {
	if !kml.IsKMZ(path) {
		return os.ReadFile(path)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != "doc.kml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: no doc.kml entry", path)
}

func printOutputSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	b, err := readOutput(path)
	if err != nil {
		return err
	}
	s, err := summarizeKML(bytes.NewReader(b))
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "path: %s\n", path)
	_, _ = fmt.Fprintf(w, "updated: %s\n", s.Updated)
	_, _ = fmt.Fprintf(w, "deployments: %d\n", len(s.Deployments))
	for _, d := range s.Deployments {
		_, _ = fmt.Fprintf(w, "  %s: %d placemarks\n", d.Name, d.Placemarks)
	}
	return nil
}
