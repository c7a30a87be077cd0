package landing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/signup/internal/app/resources"
	"github.com/dalemusser/signup/templates"
	"go.uber.org/zap"
)

func TestRoutes_RendersLanding(t *testing.T) {
	resources.Register()
	e := templates.New()
	if err := e.Boot(zap.NewNop()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	templates.UseEngine(e, zap.NewNop())

	rec := httptest.NewRecorder()
	Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `href="/register"`) || !strings.Contains(body, "<title>Welcome</title>") {
		t.Errorf("unexpected body:\n%s", body)
	}
	if strings.Contains(body, "signup.js") {
		t.Error("landing page should not load the form script")
	}
}
