// internal/app/features/register/handler.go
package register

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/signup/httputil"
	"github.com/dalemusser/signup/internal/app/resources"
	"github.com/dalemusser/signup/internal/app/store"
	"github.com/dalemusser/signup/internal/domain/registration"
	"github.com/dalemusser/signup/metrics"
	"github.com/dalemusser/signup/middleware"
	apperrors "github.com/dalemusser/signup/pantry/errors"
	"github.com/dalemusser/signup/pantry/ratelimit"
	"github.com/dalemusser/signup/pantry/websocket"
	"github.com/dalemusser/signup/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "register",
		FS:       templateFS,
		Patterns: []string{"templates/*.gohtml"},
	})
}

const (
	pageTemplate   = "register_page"
	statusSnippet  = "register_status"
	statusTargetID = "register-status"
)

// Options configures the register feature.
type Options struct {
	// Live configures the websocket read loop.
	Live websocket.Config
	// Accept configures the websocket upgrade.
	Accept *websocket.AcceptOptions
}

// Handler serves the registration form, its JSON endpoints and the live
// websocket.
type Handler struct {
	pages   *store.Pages
	hub     *websocket.Hub
	limiter *ratelimit.KeyLimiter
	live    websocket.Config
	accept  *websocket.AcceptOptions
	ws      *websocket.Router
	logger  *zap.Logger
}

// NewHandler wires the feature. limiter throttles live-feedback events per
// page and client.
func NewHandler(pages *store.Pages, hub *websocket.Hub, limiter *ratelimit.KeyLimiter, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		pages:   pages,
		hub:     hub,
		limiter: limiter,
		live:    opts.Live,
		accept:  opts.Accept,
		logger:  logger.With(zap.String("feature", "register")),
	}
	h.ws = h.liveRouter()
	return h
}

// Routes returns the feature's router. Mount it at /register.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.serveNew)
	r.With(middleware.AllowForms()).Post("/", h.serveFormSubmit)

	r.Route("/{pageID}", func(r chi.Router) {
		r.Get("/", h.servePage)
		r.Get("/state", apperrors.Handle(h.serveState, h.logger))
		r.With(
			middleware.RequireJSON(),
			ratelimit.Middleware(h.limiter, ratelimit.Config{
				KeyFunc:   ratelimit.Join(pageKey, ratelimit.IPKeyFunc),
				OnLimited: writeLimited,
			}),
		).Post("/events", apperrors.Handle(h.serveEvent, h.logger))
		r.With(middleware.AllowForms()).Post("/submit", apperrors.Handle(h.serveSubmit, h.logger))
		r.Get("/live", h.serveLive)
	})
	return r
}

func pageKey(r *http.Request) string { return chi.URLParam(r, "pageID") }

func writeLimited(w http.ResponseWriter, r *http.Request) {
	apperrors.Write(w, r, apperrors.TooManyRequests("too many events; slow down"), nil)
}

var pageCases = []apperrors.Case{
	{Target: store.ErrPageNotFound, Code: apperrors.CodeNotFound, Message: "page not found"},
	{Target: store.ErrClosed, Code: apperrors.CodeServiceUnavailable, Message: "server is shutting down"},
	{Target: registration.ErrPageClosed, Code: apperrors.CodeGone, Message: "page is closed"},
	{Target: registration.ErrSubmitInProgress, Code: apperrors.CodeConflict, Message: "a submission is already in progress"},
	{Target: registration.ErrUnknownField, Code: apperrors.CodeInvalidInput, Message: "unknown field", Field: "field"},
	{Target: registration.ErrUnknownEvent, Code: apperrors.CodeInvalidInput, Message: "unknown event type", Field: "type"},
}

// pageError maps store and domain errors to client errors.
func pageError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Translate(err, pageCases...)
}

func countSubmit(res registration.SubmitResult, err error) {
	switch {
	case errors.Is(err, registration.ErrSubmitInProgress):
		metrics.Submitted(metrics.OutcomeConflict)
	case err != nil:
	case res.Accepted:
		metrics.Submitted(metrics.OutcomeAccepted)
	default:
		metrics.Submitted(metrics.OutcomeInvalid)
	}
}

// --- HTML ---

type fieldData struct {
	registration.FieldView
	Focus bool
}

type requirementLine struct {
	ID   string
	Mark registration.Mark
	Text string
}

type pageData struct {
	resources.Page
	View         registration.View
	Base         string
	Fields       []fieldData
	Requirements []requirementLine
}

func (h *Handler) pageData(v registration.View) pageData {
	d := pageData{
		Page: resources.Page{Title: "Create Account", Script: true},
		View: v,
		Base: "/register/" + v.ID,
	}
	if v.Phase == registration.PhaseSubmitting || v.Phase == registration.PhaseComplete {
		// Scriptless browsers follow the delayed steps by reloading.
		d.RefreshSeconds = 1
	}
	for _, f := range v.Fields {
		d.Fields = append(d.Fields, fieldData{FieldView: f, Focus: f.Name == v.Focus})
	}
	policy := h.pages.Config().Password
	for _, ind := range v.Indicators {
		d.Requirements = append(d.Requirements, requirementLine{
			ID:   ind.ID,
			Mark: ind.Mark,
			Text: requirementText(ind.Requirement, policy),
		})
	}
	return d
}

func requirementText(req registration.Requirement, p registration.PasswordPolicy) string {
	switch req {
	case registration.ReqLength:
		return fmt.Sprintf("At least %d characters", p.MinLength)
	case registration.ReqUppercase:
		return "One uppercase letter"
	case registration.ReqLowercase:
		return "One lowercase letter"
	case registration.ReqNumber:
		return "One number"
	case registration.ReqSpecial:
		return fmt.Sprintf("One special character (%s)", p.Special)
	}
	return string(req)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// serveNew starts a page session and renders the empty form.
func (h *Handler) serveNew(w http.ResponseWriter, r *http.Request) {
	ctl, err := h.pages.Create(r.Context())
	if err != nil {
		h.logger.Error("create page failed", zap.Error(err))
		http.Error(w, "could not start registration", http.StatusServiceUnavailable)
		return
	}
	noStore(w)
	templates.Render(w, r, pageTemplate, h.pageData(ctl.View()))
}

// servePage renders an existing page session. A finished session sends the
// browser on to the landing location.
func (h *Handler) servePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	ctl, err := h.pages.Get(r.Context(), id)
	if errors.Is(err, store.ErrPageNotFound) {
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.logger.Error("load page failed", zap.String("page_id", id), zap.Error(err))
		http.Error(w, "could not load registration", http.StatusServiceUnavailable)
		return
	}

	v := ctl.View()
	if v.Phase == registration.PhaseNavigated && v.Location != "" {
		if err := h.pages.Remove(r.Context(), id); err != nil {
			h.logger.Warn("remove finished page failed", zap.String("page_id", id), zap.Error(err))
		}
		h.hub.CloseRoom(id, websocket.StatusNormalClosure, "registration finished")
		http.Redirect(w, r, v.Location, http.StatusSeeOther)
		return
	}
	noStore(w)
	templates.Render(w, r, pageTemplate, h.pageData(v))
}

// serveFormSubmit handles the scriptless POST of the whole form. An
// invalid form is re-rendered with its errors; an accepted one redirects
// to the page session, which refreshes itself through the delayed steps.
func (h *Handler) serveFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	ctl, err := h.pages.Get(ctx, r.PostForm.Get("pageID"))
	if errors.Is(err, store.ErrPageNotFound) {
		// The session expired; carry the values into a fresh one.
		ctl, err = h.pages.Create(ctx)
	}
	if err != nil {
		h.logger.Error("load page for submit failed", zap.Error(err))
		http.Error(w, "could not load registration", http.StatusServiceUnavailable)
		return
	}

	res, err := ctl.Submit(formValues(r))
	countSubmit(res, err)
	switch {
	case errors.Is(err, registration.ErrSubmitInProgress):
		http.Redirect(w, r, "/register/"+ctl.ID(), http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Warn("submit failed", zap.String("page_id", ctl.ID()), zap.Error(err))
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	case res.Accepted:
		http.Redirect(w, r, "/register/"+ctl.ID(), http.StatusSeeOther)
		return
	}

	noStore(w)
	templates.RenderStatus(w, r, http.StatusUnprocessableEntity, pageTemplate, h.pageData(res.View))
}

func formValues(r *http.Request) registration.Values {
	vals := make(registration.Values, len(r.PostForm))
	for key, vs := range r.PostForm {
		if key == "pageID" || len(vs) == 0 {
			continue
		}
		vals[registration.FieldName(key)] = vs[0]
	}
	return vals
}

// --- JSON ---

func (h *Handler) controller(r *http.Request) (*registration.Controller, error) {
	ctl, err := h.pages.Get(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		return nil, pageError(err)
	}
	return ctl, nil
}

func (h *Handler) serveState(w http.ResponseWriter, r *http.Request) error {
	ctl, err := h.controller(r)
	if err != nil {
		return err
	}
	noStore(w)
	httputil.WriteJSON(w, http.StatusOK, ctl.View())
	return nil
}

func (h *Handler) serveEvent(w http.ResponseWriter, r *http.Request) error {
	ctl, err := h.controller(r)
	if err != nil {
		return err
	}
	var ev registration.Event
	if err := httputil.BindJSON(r, &ev); err != nil {
		return apperrors.BadRequest(err.Error())
	}
	view, err := ctl.Dispatch(ev)
	if err != nil {
		return pageError(err)
	}
	httputil.WriteJSON(w, http.StatusOK, view)
	return nil
}

// serveSubmit accepts JSON or form values. HTMX requests targeting the
// status block get just that fragment back.
func (h *Handler) serveSubmit(w http.ResponseWriter, r *http.Request) error {
	ctl, err := h.controller(r)
	if err != nil {
		return err
	}

	var values registration.Values
	if httputil.IsJSONContent(r) {
		if r.ContentLength != 0 {
			raw := map[string]string{}
			if err := httputil.BindJSON(r, &raw); err != nil {
				return apperrors.BadRequest(err.Error())
			}
			values = make(registration.Values, len(raw))
			for k, v := range raw {
				values[registration.FieldName(k)] = v
			}
		}
	} else if r.ContentLength != 0 {
		if err := r.ParseForm(); err != nil {
			return apperrors.BadRequest("invalid form")
		}
		values = formValues(r)
	}

	res, err := ctl.Submit(values)
	countSubmit(res, err)
	if err != nil {
		return pageError(err)
	}

	if r.Header.Get("HX-Request") != "" {
		templates.RenderAutoMap(w, r, pageTemplate, map[string]string{statusTargetID: statusSnippet}, h.pageData(res.View))
		return nil
	}
	httputil.WriteJSON(w, http.StatusOK, res)
	return nil
}

// closeIfGone releases a page whose last live connection ended because
// the browser left it.
func (h *Handler) closeIfGone(ctx context.Context, id string, err error) {
	if websocket.CloseStatus(err) != websocket.StatusGoingAway || h.hub.RoomSize(id) > 0 {
		return
	}
	if rerr := h.pages.Remove(ctx, id); rerr != nil {
		h.logger.Warn("release page failed", zap.String("page_id", id), zap.Error(rerr))
		return
	}
	h.logger.Debug("page released after navigation", zap.String("page_id", id))
}
