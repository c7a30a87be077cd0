// Package resources holds what every page shares: the layout template and
// the static client script and stylesheet.
package resources

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/dalemusser/signup/pantry/assets"
	"github.com/dalemusser/signup/templates"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var staticFiles = []string{"static/signup.css", "static/signup.js"}

// Version fingerprints the static files. It changes whenever one of them
// does.
var Version = assets.ContentHash(staticFS, staticFiles...)

// Register installs the shared layout set and the "asset" template
// function. Call it before templates.Engine.Boot.
func Register() {
	templates.Register(templates.Set{
		Name:     "shared",
		FS:       templateFS,
		Patterns: []string{"templates/*.gohtml"},
	})
	templates.RegisterFunc("asset", AssetURL)
}

// AssetURL returns the versioned URL of a static file, e.g.
// AssetURL("signup.js") = "/static/signup.js?v=…".
func AssetURL(name string) string {
	return "/static/" + name + "?v=" + Version
}

// StaticHandler serves the embedded static directory. Mount it under
// /static/ with the prefix stripped.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Only reachable if the embed directive changes.
		panic(err)
	}
	return assets.FileServer(sub, Version)
}

// Page carries what the layout reads. Feature view models embed it.
type Page struct {
	Title string
	// Script includes the client script.
	Script bool
	// RefreshSeconds, when positive, makes the page reload itself.
	RefreshSeconds int
}
