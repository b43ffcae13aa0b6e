package http

import (
	"net/http"
	"net/url"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/session"
)

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Dashboard handles GET /dashboard. The summary shown depends on the role.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	snap := ctl.Snapshot()
	api := ctl.API()

	var (
		env *apiclient.Envelope
		err error
	)
	switch snap.Role() {
	case domain.RoleAdmin:
		env, err = api.Users.Stats(r.Context(), nil)
	case domain.RoleTeacher:
		env, err = api.Attendance.Stats(r.Context(), nil)
	default:
		env, err = api.Assessments.Stats(r.Context(), nil)
	}
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	h.view(w, r, "Dashboard", greeting(snap), env.Data)
}

func greeting(snap session.Snapshot) string {
	if snap.User == nil {
		return "Welcome"
	}
	return "Welcome back, " + snap.User.DisplayName()
}

// Children handles GET /children: the students linked to a parent.
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	snap := ctl.Snapshot()
	q := url.Values{}
	if snap.IsParent() && snap.User != nil {
		q.Set("parentId", snap.User.ID)
	}
	env, err := ctl.API().Students.List(r.Context(), pageQuery(r, q))
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	h.view(w, r, "My Children", "Your children's progress", env.Data)
}

// Classes handles GET /classes: the grades a teacher works with.
func (h *Handler) Classes(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	snap := ctl.Snapshot()
	q := url.Values{}
	if snap.IsTeacher() && snap.User != nil {
		q.Set("teacherId", snap.User.ID)
	}
	env, err := ctl.API().Grades.List(r.Context(), pageQuery(r, q))
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	h.view(w, r, "My Classes", "Classes you teach", env.Data)
}
