package sse

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/a-h/templ"
)

// Renderer turns a named template and its data into an HTML fragment.
// r is the request the fragment is rendered for; implementations may read
// request-scoped values from it.
type Renderer interface {
	Render(ctx context.Context, r *http.Request, name string, data any) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, r *http.Request, name string, data any) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, r *http.Request, name string, data any) (string, error) {
	return f(ctx, r, name, data)
}

// TemplateRenderer renders named html/template templates.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer creates a renderer over a parsed template set,
// typically built with template.ParseFS or ParseGlob.
func NewTemplateRenderer(tmpl *template.Template) *TemplateRenderer {
	return &TemplateRenderer{tmpl: tmpl}
}

// Render executes the named template into a buffer so a failing template
// produces no partial output.
func (t *TemplateRenderer) Render(_ context.Context, _ *http.Request, name string, data any) (string, error) {
	if t == nil || t.tmpl == nil {
		return "", fmt.Errorf("sse: template set is nil")
	}

	var buf bytes.Buffer
	var err error
	if name != "" {
		err = t.tmpl.ExecuteTemplate(&buf, name, data)
	} else {
		err = t.tmpl.Execute(&buf, data)
	}
	if err != nil {
		return "", fmt.Errorf("sse: render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// TemplComponentFunc builds a templ component for the given request and data.
type TemplComponentFunc func(r *http.Request, data any) (templ.Component, error)

// TemplRenderer renders templ components registered by name.
type TemplRenderer struct {
	mu         sync.RWMutex
	components map[string]TemplComponentFunc
}

// NewTemplRenderer creates an empty templ component renderer.
func NewTemplRenderer() *TemplRenderer {
	return &TemplRenderer{components: make(map[string]TemplComponentFunc)}
}

// Register adds a component constructor under name, replacing any previous one.
func (t *TemplRenderer) Register(name string, fn TemplComponentFunc) *TemplRenderer {
	t.mu.Lock()
	t.components[name] = fn
	t.mu.Unlock()
	return t
}

// Render builds the named component and renders it with ctx, so components
// can read request-scoped values.
func (t *TemplRenderer) Render(ctx context.Context, r *http.Request, name string, data any) (string, error) {
	t.mu.RLock()
	fn, ok := t.components[name]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("sse: templ component %q is not registered", name)
	}

	component, err := fn(r, data)
	if err != nil {
		return "", fmt.Errorf("sse: build templ component %q: %w", name, err)
	}
	if component == nil {
		return "", fmt.Errorf("sse: templ component %q is nil", name)
	}

	var buf bytes.Buffer
	if err := component.Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("sse: templ component %q render error: %w", name, err)
	}
	return buf.String(), nil
}
