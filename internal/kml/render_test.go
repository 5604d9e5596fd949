package kml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/fstest"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	return r
}

func renderString(t *testing.T, doc Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := newTestRenderer(t).Render(&buf, doc); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	return buf.String()
}

func requireWellFormed(t *testing.T, s string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("output is not well-formed XML: %v", err)
		}
	}
}

func TestRender_TimeStampedTrack(t *testing.T) {
	doc, err := testBuilder().Build(testNow, []DeploymentData{testData()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	out := renderString(t, doc)
	requireWellFormed(t, out)

	if !strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Fatalf("missing xml header: %q", out[:40])
	}
	for _, want := range []string{
		"<description>Updated 03/12/24 15:00 UTC</description>",
		`<Style id="ru40-20240301T0000-glider">`,
		"<href>https://example.org/tails/ru40.png</href>",
		"<color>ff0000ff</color>",
		"<TimeSpan><begin>2024-03-11T00:00:00Z</begin><end>2024-03-12T14:00:00Z</end></TimeSpan>",
		"<coordinates>-73.9,39.2 -73.5,39.5</coordinates>",
		"<name>Last 24 Hours</name>",
		"<name>Deployed 2024-03-02 04:00</name>",
		"<name>Current Waypoint</name>",
		"<coordinates>-74,39</coordinates>",
		`<td bgcolor="darkred">9.6</td>`,
		"<tr><td>Iridium Minutes</td><td>10</td></tr>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q", want)
		}
	}
}

func TestRender_LineTrack(t *testing.T) {
	b := testBuilder()
	b.KMLType = TypeDeployed
	doc, err := b.Build(testNow, []DeploymentData{testData()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	out := renderString(t, doc)
	requireWellFormed(t, out)

	want := "<coordinates>-74,39,4.999999999999999 -73.9,39.2,4.999999999999999 -73.5,39.5,4.999999999999999</coordinates>"
	if !strings.Contains(out, want) {
		t.Fatalf("output missing line track %q", want)
	}
	if strings.Contains(out, "<TimeSpan>") {
		t.Fatalf("line track should not carry time spans")
	}
}

func TestRender_NotApplicableDive(t *testing.T) {
	doc, err := testBuilder().Build(testNow, []DeploymentData{testData()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	out := renderString(t, doc)
	if !strings.Contains(out, "<tr><td>Dive Time (min)</td><td>N/A</td></tr>") {
		t.Fatalf("deployment popup should show N/A dive time")
	}
	if !strings.Contains(out, "<tr><td>Dive Time (min)</td><td>60</td></tr>") {
		t.Fatalf("last surfacing popup should show dive time")
	}
}

func TestRender_EscapesText(t *testing.T) {
	d := testData()
	d.Deployment.GliderName = `r&d "<glider>"`
	d.Surfacings[2]["surface_reason"] = "]]> & <b>"

	doc, err := testBuilder().Build(testNow, []DeploymentData{d})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	out := renderString(t, doc)
	requireWellFormed(t, out)

	if strings.Contains(out, "<glider>") || strings.Contains(out, "]]> &") {
		t.Fatalf("unescaped text in output")
	}
	if !strings.Contains(out, "<name>r&amp;d &#34;&lt;glider&gt;&#34;</name>") {
		t.Fatalf("escaped glider name not found")
	}
}

func TestRender_Empty(t *testing.T) {
	doc, err := testBuilder().Build(testNow, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	out := renderString(t, doc)
	requireWellFormed(t, out)
	if strings.Contains(out, "<Folder") {
		t.Fatalf("empty document should have no folders")
	}
}

func TestNewRenderer_Overrides(t *testing.T) {
	overrides := fstest.MapFS{
		"popup.kml.tmpl": {Data: []byte(`{{define "popup"}}<b>{{xml .Mission}}</b>{{end}}`)},
		"ignored.txt":    {Data: []byte(`{{define "document"}}broken{{end}}`)},
	}
	r, err := NewRenderer(overrides)
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	doc, err := testBuilder().Build(testNow, []DeploymentData{testData()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, doc); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	out := buf.String()
	requireWellFormed(t, out)
	if !strings.Contains(out, "<b>lt_ng.mi</b>") {
		t.Fatalf("override popup not rendered")
	}
	if strings.Contains(out, "Dive Time (min)") {
		t.Fatalf("built-in popup still rendered")
	}
}

func TestNewRenderer_BadOverride(t *testing.T) {
	overrides := fstest.MapFS{
		"popup.kml.tmpl": {Data: []byte(`{{define "popup"}}{{.Missing`)},
	}
	if _, err := NewRenderer(overrides); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestText(t *testing.T) {
	f := 1.25
	var nilF *float64
	i := int64(7)
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{nilF, ""},
		{&f, "1.25"},
		{12.0, "12"},
		{&i, "7"},
		{"N/A", "N/A"},
	}
	for _, tc := range cases {
		if got := text(tc.in); got != tc.want {
			t.Fatalf("text(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}
