package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/lysyi3m/feed-digest/app/feed"
)

//go:embed templates/*.html
var templateFS embed.FS

type HTML struct {
	tmpl *template.Template
}

// NewHTML uses the template at path, or the built-in one when path is empty.
func NewHTML(path string) (*HTML, error) {
	source, err := templateFS.ReadFile("templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in template: %w", err)
	}

	if path != "" {
		source, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}

	tmpl, err := template.New("index").Funcs(template.FuncMap{
		"formatDate": formatDate,
		"isoDate":    isoDate,
	}).Parse(string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &HTML{tmpl: tmpl}, nil
}

func (h *HTML) Run(payload Payload) (string, error) {
	now := payload.GeneratedAt
	if now.IsZero() {
		now = time.Now()
	}

	var buf bytes.Buffer
	err := h.tmpl.Execute(&buf, map[string]any{
		"Categories": payload.Categories,
		"Groups":     payload.Groups,
		"Errors":     payload.Errors,
		"Info":       payload.Info,
		"Now":        now.In(time.Local).Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}

	return buf.String(), nil
}

// formatDate prints parsed timestamps as a local date and passes raw
// strings through.
func formatDate(ts feed.Timestamp) string {
	if !ts.Parsed {
		return ts.Raw
	}
	return ts.Time().In(time.Local).Format("Jan 2, 2006")
}

func isoDate(ts feed.Timestamp) string {
	if !ts.Parsed {
		return ""
	}
	return ts.Time().UTC().Format(time.RFC3339)
}
