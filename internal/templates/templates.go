// Package templates loads draft document templates from YAML files. A
// template carries the section/field structure and any values the upstream
// autofill already produced.
package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"npa/draftbuilder/internal/draft"
)

// ErrNotFound is returned when no template has the requested id.
var ErrNotFound = errors.New("template not found")

// Summary describes a template without its fields.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Sections    int    `json:"sections"`
	Fields      int    `json:"fields"`
}

// Source supplies draft documents by template id.
type Source interface {
	List(ctx context.Context) ([]Summary, error)
	Load(ctx context.Context, id string) (draft.Document, error)
}

type templateFile struct {
	draft.Document `yaml:",inline"`
	Description    string `yaml:"description,omitempty"`
}

// Parse decodes and validates one template.
func Parse(data []byte) (draft.Document, string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return draft.Document{}, "", fmt.Errorf("templates: payload is empty")
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return draft.Document{}, "", fmt.Errorf("templates: decode: %w", err)
	}
	doc := file.Document
	if strings.TrimSpace(doc.ID) == "" {
		return draft.Document{}, "", fmt.Errorf("templates: id is required")
	}
	if err := doc.Validate(); err != nil {
		return draft.Document{}, "", fmt.Errorf("templates: %s: %w", doc.ID, err)
	}
	return doc, file.Description, nil
}

// LoadFile reads a template from path.
func LoadFile(path string) (draft.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return draft.Document{}, fmt.Errorf("templates: read %s: %w", path, err)
	}
	doc, _, err := Parse(data)
	if err != nil {
		return draft.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Dir is a Source over *.yaml and *.yml files in one directory. Files are
// re-read on every call so edits show up without a restart.
type Dir struct {
	Path string
}

func NewDir(path string) *Dir {
	return &Dir{Path: path}
}

func (d *Dir) List(ctx context.Context) ([]Summary, error) {
	paths, err := d.files()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("templates: read %s: %w", path, err)
		}
		doc, description, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, Summary{
			ID:          doc.ID,
			Title:       doc.Title,
			Description: description,
			Sections:    len(doc.Sections),
			Fields:      len(doc.Fields()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Dir) Load(ctx context.Context, id string) (draft.Document, error) {
	paths, err := d.files()
	if err != nil {
		return draft.Document{}, err
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return draft.Document{}, err
		}
		doc, err := LoadFile(path)
		if err != nil {
			return draft.Document{}, err
		}
		if doc.ID == id {
			return doc, nil
		}
	}
	return draft.Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (d *Dir) files() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("templates: read dir %s: %w", d.Path, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(d.Path, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
