package render

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// ErrTemplateNotFound indicates no template file exists for the requested name.
var ErrTemplateNotFound = errors.New("template not found")

//go:embed templates/*.html
var embeddedTemplates embed.FS

const templateExt = ".html"

// Templates renders named html/template files from a directory.
type Templates struct {
	fsys fs.FS

	mu     sync.RWMutex
	parsed map[string]*template.Template
}

// NewTemplates serves templates from dir. An empty dir uses the built-in resume and coverletter templates.
func NewTemplates(dir string) *Templates {
	var fsys fs.FS
	if strings.TrimSpace(dir) == "" {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			panic(fmt.Sprintf("embedded templates: %v", err))
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}
	return NewTemplatesFS(fsys)
}

// NewTemplatesFS serves templates from an arbitrary file system.
func NewTemplatesFS(fsys fs.FS) *Templates {
	return &Templates{fsys: fsys, parsed: make(map[string]*template.Template)}
}

// Render executes the template resolved from name with data and returns the HTML.
// Only the base name is used, so "../x" and "x.html" both resolve to x.html.
func (t *Templates) Render(ctx context.Context, name string, data any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, err := t.lookup(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func (t *Templates) lookup(name string) (*template.Template, error) {
	base := baseName(name)
	if base == "" {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	t.mu.RLock()
	tmpl, ok := t.parsed[base]
	t.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	file := base + templateExt
	content, err := fs.ReadFile(t.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("read template %s: %w", file, err)
	}
	tmpl, err = template.New(file).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", file, err)
	}

	t.mu.Lock()
	t.parsed[base] = tmpl
	t.mu.Unlock()
	return tmpl, nil
}

func baseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := strings.TrimSuffix(path.Base(name), templateExt)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

var funcs = template.FuncMap{
	"join": func(sep string, items []any) string {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, sep)
	},
	"lines": func(v any) []string {
		if v == nil {
			return nil
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		var out []string
		for _, line := range strings.Split(s, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	},
}
