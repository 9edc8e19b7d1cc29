package sse_test

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alltuner/vibetuner/core/sse"
)

type ctxKey struct{}

func TestTemplateRenderer(t *testing.T) {
	t.Parallel()

	tmpl := template.Must(template.New("root").Parse(`root:{{.}}`))
	template.Must(tmpl.New("partials/post").Parse(`<li>{{.Title}}</li>`))
	template.Must(tmpl.New("partials/fails").Parse(`{{.Missing.Field}}`))
	r := sse.NewTemplateRenderer(tmpl)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	t.Run("named template escapes data", func(t *testing.T) {
		t.Parallel()
		out, err := r.Render(context.Background(), req, "partials/post", map[string]string{"Title": "<b>hi</b>"})
		require.NoError(t, err)
		assert.Equal(t, "<li>&lt;b&gt;hi&lt;/b&gt;</li>", out)
	})

	t.Run("empty name executes root", func(t *testing.T) {
		t.Parallel()
		out, err := r.Render(context.Background(), req, "", "x")
		require.NoError(t, err)
		assert.Equal(t, "root:x", out)
	})

	t.Run("unknown template", func(t *testing.T) {
		t.Parallel()
		_, err := r.Render(context.Background(), req, "nope", nil)
		assert.Error(t, err)
	})

	t.Run("execution error produces no output", func(t *testing.T) {
		t.Parallel()
		out, err := r.Render(context.Background(), req, "partials/fails", map[string]any{"Missing": 1})
		assert.Error(t, err)
		assert.Empty(t, out)
	})

	t.Run("nil template set", func(t *testing.T) {
		t.Parallel()
		_, err := sse.NewTemplateRenderer(nil).Render(context.Background(), req, "x", nil)
		assert.Error(t, err)
	})
}

func TestTemplRenderer(t *testing.T) {
	t.Parallel()

	r := sse.NewTemplRenderer().
		Register("greeting", func(req *http.Request, data any) (templ.Component, error) {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				user, _ := ctx.Value(ctxKey{}).(string)
				_, err := io.WriteString(w, "<p>"+templ.EscapeString(data.(string))+" "+user+" "+req.URL.Path+"</p>")
				return err
			}), nil
		}).
		Register("broken", func(*http.Request, any) (templ.Component, error) {
			return nil, errors.New("no data")
		}).
		Register("nil", func(*http.Request, any) (templ.Component, error) {
			return nil, nil
		})

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	ctx := context.WithValue(context.Background(), ctxKey{}, "ann")

	out, err := r.Render(ctx, req, "greeting", "<hi>")
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;hi&gt; ann /feed</p>", out)

	_, err = r.Render(ctx, req, "missing", nil)
	assert.ErrorContains(t, err, "not registered")

	_, err = r.Render(ctx, req, "broken", nil)
	assert.ErrorContains(t, err, "no data")

	_, err = r.Render(ctx, req, "nil", nil)
	assert.ErrorContains(t, err, "is nil")
}
