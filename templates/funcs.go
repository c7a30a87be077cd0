// templates/funcs.go
package templates

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"
)

// Funcs returns helpers available to all templates.
func Funcs() template.FuncMap {
	return template.FuncMap{
		// {{ "a b" | urlquery }} → "a+b"
		"urlquery": url.QueryEscape,
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"join":     strings.Join,
		"printf":   func(f string, a ...any) string { return fmt.Sprintf(f, a...) },

		// {{ .View | toJSON }} embeds a value for the client script.
		"toJSON": func(v any) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS("null")
			}
			return template.JS(b)
		},

		// {{ classIf .Disabled "disabled" }}
		"classIf": func(cond bool, class string) string {
			if cond {
				return class
			}
			return ""
		},
	}
}

var (
	customFuncsMu sync.RWMutex
	customFuncs   = template.FuncMap{}
)

// RegisterFunc adds a template function for every later Boot.
func RegisterFunc(name string, fn any) {
	customFuncsMu.Lock()
	defer customFuncsMu.Unlock()
	customFuncs[name] = fn
}
