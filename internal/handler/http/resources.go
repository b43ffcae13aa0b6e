package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/pkg/httputil"
	"github.com/kulsmauinformatics/sumatin/pkg/pagination"
	"github.com/kulsmauinformatics/sumatin/pkg/validator"
)

const maxPassthroughBytes = 1 << 20

type resourceOf func(*apiclient.API) apiclient.Resource

// fetchFunc performs one backend read or write for the request.
type fetchFunc func(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error)

// pageQuery copies the request query, overlays extra and normalizes the
// pagination parameters.
func pageQuery(r *http.Request, extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range r.URL.Query() {
		q[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		q[k] = append([]string(nil), v...)
	}
	return pagination.FromValues(q).Apply(q)
}

// decodeBody reads the request body as an opaque JSON document.
func decodeBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	var body json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPassthroughBytes)).Decode(&body); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return nil, false
	}
	return body, true
}

func (h *Handler) fetch(status int, fn fetchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api, ok := h.api(w, r)
		if !ok {
			return
		}
		env, err := fn(r.Context(), api, r)
		if err != nil {
			h.writeAPIError(w, r, err)
			return
		}
		writeEnvelope(w, status, env)
	}
}

func (h *Handler) listOf(sel resourceOf, extra url.Values) http.HandlerFunc {
	return h.fetch(http.StatusOK, func(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
		return sel(api).List(ctx, pageQuery(r, extra))
	})
}

func (h *Handler) getOf(sel resourceOf) http.HandlerFunc {
	return h.fetch(http.StatusOK, func(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
		return sel(api).Get(ctx, chi.URLParam(r, "id"))
	})
}

func (h *Handler) deleteOf(sel resourceOf) http.HandlerFunc {
	return h.fetch(http.StatusOK, func(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
		return sel(api).Delete(ctx, chi.URLParam(r, "id"))
	})
}

// withBody decodes the request body before calling fn.
func (h *Handler) withBody(status int, fn func(ctx context.Context, api *apiclient.API, r *http.Request, body json.RawMessage) (*apiclient.Envelope, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api, ok := h.api(w, r)
		if !ok {
			return
		}
		body, ok := decodeBody(w, r)
		if !ok {
			return
		}
		env, err := fn(r.Context(), api, r, body)
		if err != nil {
			h.writeAPIError(w, r, err)
			return
		}
		writeEnvelope(w, status, env)
	}
}

func (h *Handler) createOf(sel resourceOf) http.HandlerFunc {
	return h.withBody(http.StatusCreated, func(ctx context.Context, api *apiclient.API, _ *http.Request, body json.RawMessage) (*apiclient.Envelope, error) {
		return sel(api).Create(ctx, body)
	})
}

func (h *Handler) updateOf(sel resourceOf) http.HandlerFunc {
	return h.withBody(http.StatusOK, func(ctx context.Context, api *apiclient.API, r *http.Request, body json.RawMessage) (*apiclient.Envelope, error) {
		return sel(api).Update(ctx, chi.URLParam(r, "id"), body)
	})
}

var (
	users       resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Users.Resource }
	schools     resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Schools.Resource }
	grades      resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Grades.Resource }
	attendance  resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Attendance.Resource }
	assessments resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Assessments.Resource }
	library     resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Library.Resource }
	learning    resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Learning.Resource }
	feeds       resourceOf = func(a *apiclient.API) apiclient.Resource { return a.Feeds.Resource }
)

func roleFilter(role string) url.Values {
	return url.Values{"role": {role}}
}

type toggleStatusRequest struct {
	IsActive bool `json:"isActive"`
}

type adminPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=6,max=200"`
}

// ToggleUserStatus handles PATCH /users/{id}/status.
func (h *Handler) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	api, ok := h.api(w, r)
	if !ok {
		return
	}
	var req toggleStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPassthroughBytes)).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	env, err := api.Users.ToggleStatus(r.Context(), chi.URLParam(r, "id"), req.IsActive)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, env)
}

// ResetUserPassword handles PATCH /users/{id}/password.
func (h *Handler) ResetUserPassword(w http.ResponseWriter, r *http.Request) {
	api, ok := h.api(w, r)
	if !ok {
		return
	}
	var req adminPasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	env, err := api.Users.ResetPassword(r.Context(), chi.URLParam(r, "id"), req.NewPassword)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, env)
}

func searchUsers(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Users.Search(ctx, pageQuery(r, nil))
}

func userStats(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Users.Stats(ctx, r.URL.Query())
}

func schoolStats(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Schools.Stats(ctx, chi.URLParam(r, "id"))
}

func schoolGrades(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Schools.Grades(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func schoolTeachers(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Schools.Teachers(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func schoolFeeds(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Schools.Feeds(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func gradeStudents(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Grades.Students(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func gradeAttendance(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Grades.Attendance(ctx, chi.URLParam(r, "id"), r.URL.Query())
}

func gradeAssessments(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Grades.Assessments(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func gradeLearning(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Grades.Learning(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func studentAttendance(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Students.Attendance(ctx, chi.URLParam(r, "id"), r.URL.Query())
}

func studentAssessments(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Students.Assessments(ctx, chi.URLParam(r, "id"), pageQuery(r, nil))
}

func attendanceStats(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Attendance.Stats(ctx, r.URL.Query())
}

func assessmentStats(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Assessments.Stats(ctx, r.URL.Query())
}

func libraryOverview(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Library.Overview(ctx, r.URL.Query())
}

func librarySearch(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Library.Search(ctx, pageQuery(r, nil))
}

func libraryCategories(ctx context.Context, api *apiclient.API, _ *http.Request) (*apiclient.Envelope, error) {
	return api.Library.Categories(ctx)
}

func learningOverview(ctx context.Context, api *apiclient.API, r *http.Request) (*apiclient.Envelope, error) {
	return api.Learning.Overview(ctx, r.URL.Query())
}

func takeAttendance(ctx context.Context, api *apiclient.API, _ *http.Request, body json.RawMessage) (*apiclient.Envelope, error) {
	return api.Attendance.Take(ctx, body)
}
