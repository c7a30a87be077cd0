// templates/engine.go
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Set is one package's templates.
type Set struct {
	// Name is used in logs. The set named "shared" holds the layout and is
	// parsed into every page.
	Name string
	FS   fs.FS
	// Patterns are globs into FS, e.g. "templates/*.gohtml".
	Patterns []string
}

var (
	registryMu sync.RWMutex
	registry   []Set
)

// Register records a Set for the next Boot. Feature packages call it from
// their Routes constructor or init.
func Register(s Set) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for i, existing := range registry {
		if existing.Name == s.Name {
			registry[i] = s
			return
		}
	}
	registry = append(registry, s)
}

func registered() []Set {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Set, len(registry))
	copy(out, registry)
	return out
}

// Reset clears the registry. Tests use it.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}

// Engine holds one compiled template tree per page file, each a clone of the
// shared layout.
type Engine struct {
	mu     sync.RWMutex
	funcs  template.FuncMap
	base   *template.Template
	byName map[string]*template.Template
	logger *zap.Logger
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		funcs:  Funcs(),
		byName: map[string]*template.Template{},
	}
}

// Boot compiles every registered Set. It must run before any Render.
func (e *Engine) Boot(logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger

	customFuncsMu.RLock()
	for k, v := range customFuncs {
		e.funcs[k] = v
	}
	customFuncsMu.RUnlock()

	var shared *Set
	var pages []Set
	for _, s := range registered() {
		if s.Name == "shared" {
			s := s
			shared = &s
			continue
		}
		pages = append(pages, s)
	}
	if shared == nil {
		return fmt.Errorf("shared templates not registered")
	}

	base, err := e.parseShared(shared.FS, shared.Patterns)
	if err != nil {
		return fmt.Errorf("parse shared: %w", err)
	}
	e.base = base

	for _, s := range pages {
		if err := e.compileSet(s); err != nil {
			return fmt.Errorf("compile set %q: %w", s.Name, err)
		}
	}
	return nil
}

var (
	reContentDefine = regexp.MustCompile(`{{\s*define\s+"content"\s*}}`)
	reDefineName    = regexp.MustCompile(`{{-?\s*define\s+"([^"]+)"`)
)

// compileSet gives each page file its own clone of the layout. The other
// files of the set are parsed in as well so shared partials resolve, but
// their "content" blocks are renamed out of the way. Only the names a
// file defines itself are indexed to its clone.
func (e *Engine) compileSet(s Set) error {
	files, err := globAll(s.FS, s.Patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		e.logger.Warn("no templates matched", zap.String("set", s.Name))
		return nil
	}

	sources := make(map[string]string, len(files))
	for _, p := range files {
		b, err := fs.ReadFile(s.FS, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		sources[p] = string(b)
	}

	for _, page := range files {
		clone, err := e.base.Clone()
		if err != nil {
			return fmt.Errorf("clone base: %w", err)
		}
		for _, p := range files {
			text := sources[p]
			if p != page {
				text = reContentDefine.ReplaceAllString(text, fmt.Sprintf(`{{ define %q }}`, ignoredContentName(p)))
			}
			if _, err := clone.Funcs(e.funcs).Parse(text); err != nil {
				return fmt.Errorf("parse %s (for %s): %w", p, page, err)
			}
		}

		e.mu.Lock()
		for _, m := range reDefineName.FindAllStringSubmatch(sources[page], -1) {
			if m[1] != "content" {
				e.byName[m[1]] = clone
			}
		}
		e.mu.Unlock()

		e.logger.Debug("template page compiled",
			zap.String("set", s.Name),
			zap.String("page", filepath.Base(page)))
	}
	return nil
}

func ignoredContentName(path string) string {
	base := filepath.Base(path)
	return "_content_ignored_" + strings.TrimSuffix(base, filepath.Ext(base))
}

func (e *Engine) parseShared(fsys fs.FS, patterns []string) (*template.Template, error) {
	root := template.New("root").Funcs(e.funcs)
	files, err := globAll(fsys, patterns)
	if err != nil {
		return nil, err
	}
	for _, p := range files {
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, err
		}
		if _, err := root.Parse(string(b)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
	}
	return root, nil
}

func globAll(fsys fs.FS, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pat := range patterns {
		matches, err := fs.Glob(fsys, pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Execute runs the named template into w. Output is buffered so a failing
// template writes nothing.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	return e.exec(w, name, name, data)
}

// ExecuteContent runs only the "content" block of the page that defines
// entry.
func (e *Engine) ExecuteContent(w io.Writer, entry string, data any) error {
	return e.exec(w, entry, "content", data)
}

func (e *Engine) exec(w io.Writer, owner, name string, data any) error {
	e.mu.RLock()
	t, ok := e.byName[owner]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", owner)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Has reports whether a template name is indexed.
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.byName[name]
	return ok
}
