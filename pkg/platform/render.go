package platform

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const templateExt = ".tmpl"

// Renderer renders a named template with bindings. Rendering has no side
// effects.
type Renderer interface {
	Render(id string, bindings map[string]any) ([]byte, error)
}

// TemplateRenderer renders the embedded templates. A template of the same
// name in the override directory replaces the embedded one; partials
// (files starting with "_") stay available to overrides.
type TemplateRenderer struct {
	base        *template.Template
	overrideDir string
}

// NewTemplateRenderer parses the embedded templates. overrideDir may be
// empty.
func NewTemplateRenderer(overrideDir string) (*TemplateRenderer, error) {
	base, err := template.New("strata").
		Funcs(templateFuncs).
		Option("missingkey=error").
		ParseFS(templateFS, "templates/*"+templateExt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	return &TemplateRenderer{base: base, overrideDir: overrideDir}, nil
}

// Templates lists the renderable template IDs
func (r *TemplateRenderer) Templates() []string {
	var ids []string
	for _, t := range r.base.Templates() {
		name := t.Name()
		if strings.HasSuffix(name, templateExt) && !strings.HasPrefix(name, "_") {
			ids = append(ids, strings.TrimSuffix(name, templateExt))
		}
	}
	sort.Strings(ids)
	return ids
}

// Render implements Renderer
func (r *TemplateRenderer) Render(id string, bindings map[string]any) ([]byte, error) {
	tmpl, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, bindings); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", id, err)
	}
	return buf.Bytes(), nil
}

func (r *TemplateRenderer) lookup(id string) (*template.Template, error) {
	name := id + templateExt

	if r.overrideDir != "" {
		data, err := os.ReadFile(filepath.Join(r.overrideDir, name))
		switch {
		case err == nil:
			set, err := r.base.Clone()
			if err != nil {
				return nil, err
			}
			tmpl, err := set.New(name).Parse(string(data))
			if err != nil {
				return nil, fmt.Errorf("failed to parse override template %s: %w", name, err)
			}
			return tmpl, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read override template %s: %w", name, err)
		}
	}

	tmpl := r.base.Lookup(name)
	if tmpl == nil {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return tmpl, nil
}

var templateFuncs = template.FuncMap{
	"json": toJSON,
	"list": toList,
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// toList turns nil into an empty list and a scalar into a one-element list.
func toList(v any) []any {
	if v == nil {
		return []any{}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
