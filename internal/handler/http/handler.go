package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/authz"
	"github.com/kulsmauinformatics/sumatin/internal/navigation"
	"github.com/kulsmauinformatics/sumatin/internal/session"
	apperrors "github.com/kulsmauinformatics/sumatin/pkg/errors"
	"github.com/kulsmauinformatics/sumatin/pkg/httputil"
)

// Handler serves the portal routes for the session found in the request
// context.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates the portal HTTP handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// View is the JSON rendering of a portal page.
type View struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	User        any               `json:"user,omitempty"`
	Menu        []navigation.Item `json:"menu,omitempty"`
	Data        any               `json:"data,omitempty"`
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	ctl := session.FromContext(r.Context())
	if ctl == nil {
		httputil.WriteError(w, r, apperrors.Internal(errors.New("no session in request context")), h.logger)
		return nil, false
	}
	return ctl, true
}

func (h *Handler) api(w http.ResponseWriter, r *http.Request) (*apiclient.API, bool) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return nil, false
	}
	return ctl.API(), true
}

// view renders a page for the current user with the menu marked for the
// request path.
func (h *Handler) view(w http.ResponseWriter, r *http.Request, title, description string, data any) {
	snap := session.SnapshotFromContext(r.Context())
	v := View{Title: title, Description: description, Data: data}
	if snap.User != nil {
		v.User = snap.User
		v.Menu = navigation.MarkActive(navigation.Menu(snap.Role()), r.URL.Path)
	}
	httputil.WriteData(w, http.StatusOK, v)
}

// page returns a handler rendering a static view.
func (h *Handler) page(title, description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.view(w, r, title, description, nil)
	}
}

// writeEnvelope relays the data member of a backend envelope.
func writeEnvelope(w http.ResponseWriter, status int, env *apiclient.Envelope) {
	httputil.WriteRaw(w, status, env.Data)
}

// writeAPIError maps a backend failure onto the portal response. A session
// that can no longer authenticate is sent to the login page.
func (h *Handler) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrAuthInvalid):
		http.Redirect(w, r, authz.LoginURL(r.URL.RequestURI()), http.StatusFound)
	case errors.Is(err, apiclient.ErrNetwork):
		httputil.WriteError(w, r, apperrors.BadGateway("backend unavailable", err), h.logger)
	case errors.As(err, &apiErr):
		httputil.WriteError(w, r, apperrors.FromStatus(apiErr.Status, apiErr.Message), h.logger)
	default:
		httputil.WriteError(w, r, apperrors.Internal(err), h.logger)
	}
}

// writeResult answers a controller operation. Failures carry the message
// under code with failStatus.
func writeResult(w http.ResponseWriter, res session.Result, failStatus int, code string) {
	if !res.Success {
		httputil.WriteJSON(w, failStatus, httputil.Response{
			Error: &httputil.ErrorResponse{Code: code, Message: res.Message},
		})
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

func writeInvalid(w http.ResponseWriter, err error) {
	httputil.WriteValidationError(w, err)
}

// safeRedirect accepts only local absolute paths as a post-login target.
func safeRedirect(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return authz.LandingPath
	}
	if from == authz.LoginPath || strings.HasPrefix(from, authz.LoginPath+"?") {
		return authz.LandingPath
	}
	return from
}
