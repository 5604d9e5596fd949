package kml

import (
	"embed"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"strconv"
	"strings"
	"text/template"
)

//go:embed templates/*.kml.tmpl
var builtinTemplates embed.FS

const templatePattern = "*.kml.tmpl"

// Renderer executes the KML templates. The zero value is not usable; use
// NewRenderer.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the built-in templates, then any *.kml.tmpl files in
// overrides (which may be nil). A {{define}} in an override file replaces
// the built-in template of the same name.
func NewRenderer(overrides fs.FS) (*Renderer, error) {
	builtin, err := fs.Sub(builtinTemplates, "templates")
	if err != nil {
		return nil, err
	}
	t, err := template.New("kml").Funcs(template.FuncMap{
		"xml":   xmlText,
		"coord": coord,
		"line":  line,
	}).ParseFS(builtin, templatePattern)
	if err != nil {
		return nil, fmt.Errorf("kml: parse templates: %w", err)
	}
	if overrides != nil {
		if t, err = t.ParseFS(overrides, templatePattern); err != nil {
			return nil, fmt.Errorf("kml: parse template overrides: %w", err)
		}
	}
	return &Renderer{tmpl: t}, nil
}

// Render writes doc as a KML document.
func (r *Renderer) Render(w io.Writer, doc Document) error {
	if err := r.tmpl.ExecuteTemplate(w, "document", doc); err != nil {
		return fmt.Errorf("kml: render: %w", err)
	}
	return nil
}

// text formats a template value. Nil values (including nil pointers) render
// empty.
func text(v any) string {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		v = rv.Elem().Interface()
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// xmlText escapes a value for XML text and attribute content.
func xmlText(v any) string {
	s := text(v)
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

func coord(vals ...any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = text(v)
	}
	return strings.Join(parts, ",")
}

func line(coords []Coord, height float64) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = coord(c.Lon, c.Lat, height)
	}
	return strings.Join(parts, " ")
}
