// templates/adapter.go
package templates

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"
)

var (
	engine *Engine
	logger = zap.NewNop()
)

// UseEngine installs the engine and logger used by the Render helpers.
func UseEngine(e *Engine, l *zap.Logger) {
	engine = e
	if l != nil {
		logger = l
	}
}

const htmlContentType = "text/html; charset=utf-8"

// Render writes a full page (an entry template that calls the layout).
func Render(w http.ResponseWriter, r *http.Request, name string, data any) {
	RenderStatus(w, r, http.StatusOK, name, data)
}

// RenderStatus is Render with an explicit status code.
func RenderStatus(w http.ResponseWriter, _ *http.Request, status int, name string, data any) {
	write(w, status, name, func(e *Engine, buf *bytes.Buffer) error { return e.Execute(buf, name, data) })
}

// RenderSnippet writes a partial by name, e.g. "register_status".
func RenderSnippet(w http.ResponseWriter, name string, data any) {
	write(w, http.StatusOK, name, func(e *Engine, buf *bytes.Buffer) error { return e.Execute(buf, name, data) })
}

// RenderAutoMap picks the partial mapped to the request's HX-Target. An
// HTMX request targeting "content" gets the page's content block. Anything
// else gets the full page.
func RenderAutoMap(w http.ResponseWriter, r *http.Request, page string, targets map[string]string, data any) {
	if r.Header.Get("HX-Request") != "" {
		target := r.Header.Get("HX-Target")
		if snip, ok := targets[target]; ok && snip != "" {
			RenderSnippet(w, snip, data)
			return
		}
		if target == "content" {
			write(w, http.StatusOK, page, func(e *Engine, buf *bytes.Buffer) error { return e.ExecuteContent(buf, page, data) })
			return
		}
	}
	Render(w, r, page, data)
}

func write(w http.ResponseWriter, status int, name string, run func(*Engine, *bytes.Buffer) error) {
	if engine == nil {
		logger.Error("render called before engine installed", zap.String("name", name))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := run(engine, &buf); err != nil {
		logger.Error("template render failed", zap.String("name", name), zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
