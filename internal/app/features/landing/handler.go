// internal/app/features/landing/handler.go
package landing

import (
	"embed"
	"net/http"

	"github.com/dalemusser/signup/internal/app/resources"
	"github.com/dalemusser/signup/templates"
	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "landing",
		FS:       templateFS,
		Patterns: []string{"templates/*.gohtml"},
	})
}

type pageData struct {
	resources.Page
}

// Routes serves the landing page, where a finished registration ends up.
func Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		templates.Render(w, r, "landing_page", pageData{Page: resources.Page{Title: "Welcome"}})
	})
	return r
}
