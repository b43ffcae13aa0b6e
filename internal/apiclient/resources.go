package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// Resource is a backend collection with the usual CRUD endpoints under base.
type Resource struct {
	client *Client
	base   string
}

// NewResource creates a Resource rooted at base, e.g. "/schools".
func NewResource(client *Client, base string) Resource {
	return Resource{client: client, base: base}
}

// Path returns the collection path.
func (r Resource) Path() string { return r.base }

func (r Resource) item(id string) string {
	return r.base + "/" + url.PathEscape(id)
}

func (r Resource) get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return r.client.Call(ctx, NewRequest(http.MethodGet, path, query))
}

// List fetches the collection. query carries filters and page/per_page.
func (r Resource) List(ctx context.Context, query url.Values) (*Envelope, error) {
	return r.get(ctx, r.base, query)
}

// Get fetches one item.
func (r Resource) Get(ctx context.Context, id string) (*Envelope, error) {
	return r.get(ctx, r.item(id), nil)
}

// Create posts a new item.
func (r Resource) Create(ctx context.Context, body any) (*Envelope, error) {
	return send(ctx, r.client, http.MethodPost, r.base, body)
}

// Update replaces an item.
func (r Resource) Update(ctx context.Context, id string, body any) (*Envelope, error) {
	return send(ctx, r.client, http.MethodPut, r.item(id), body)
}

// Delete removes an item.
func (r Resource) Delete(ctx context.Context, id string) (*Envelope, error) {
	return r.client.Call(ctx, NewRequest(http.MethodDelete, r.item(id), nil))
}

func nested(parent, id, child string) string {
	return parent + "/" + url.PathEscape(id) + "/" + child
}

type UsersAPI struct{ Resource }

func (u *UsersAPI) Search(ctx context.Context, query url.Values) (*Envelope, error) {
	return u.get(ctx, "/users/search", query)
}

func (u *UsersAPI) Stats(ctx context.Context, query url.Values) (*Envelope, error) {
	return u.get(ctx, "/users/stats", query)
}

// ToggleStatus activates or deactivates a user account.
func (u *UsersAPI) ToggleStatus(ctx context.Context, id string, active bool) (*Envelope, error) {
	return send(ctx, u.client, http.MethodPatch, u.item(id)+"/status", map[string]bool{"isActive": active})
}

// ResetPassword sets a new password for a user as an administrator.
func (u *UsersAPI) ResetPassword(ctx context.Context, id, newPassword string) (*Envelope, error) {
	return send(ctx, u.client, http.MethodPatch, u.item(id)+"/reset-password", map[string]string{"newPassword": newPassword})
}

func (u *UsersAPI) Health(ctx context.Context) (*Envelope, error) {
	return u.get(ctx, "/users/health", nil)
}

type SchoolsAPI struct{ Resource }

func (s *SchoolsAPI) Stats(ctx context.Context, id string) (*Envelope, error) {
	return s.get(ctx, s.item(id)+"/stats", nil)
}

func (s *SchoolsAPI) Grades(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return s.get(ctx, nested("/schools", id, "grades"), query)
}

func (s *SchoolsAPI) Teachers(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return s.get(ctx, nested("/schools", id, "teachers"), query)
}

func (s *SchoolsAPI) Feeds(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return s.get(ctx, nested("/schools", id, "feeds"), query)
}

type GradesAPI struct{ Resource }

func (g *GradesAPI) Students(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return g.get(ctx, nested("/grades", id, "students"), query)
}

func (g *GradesAPI) Attendance(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return g.get(ctx, nested("/grades", id, "attendance"), query)
}

func (g *GradesAPI) Assessments(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return g.get(ctx, nested("/grades", id, "assessments"), query)
}

func (g *GradesAPI) Learning(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return g.get(ctx, nested("/grades", id, "learning"), query)
}

type StudentsAPI struct{ Resource }

func (s *StudentsAPI) Attendance(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return s.get(ctx, nested("/students", id, "attendance"), query)
}

func (s *StudentsAPI) Assessments(ctx context.Context, id string, query url.Values) (*Envelope, error) {
	return s.get(ctx, nested("/students", id, "assessments"), query)
}

type TeachersAPI struct{ Resource }

type AttendanceAPI struct{ Resource }

// Take submits a class register.
func (a *AttendanceAPI) Take(ctx context.Context, body any) (*Envelope, error) {
	return send(ctx, a.client, http.MethodPost, "/attendance/take", body)
}

func (a *AttendanceAPI) Stats(ctx context.Context, query url.Values) (*Envelope, error) {
	return a.get(ctx, "/attendance/stats", query)
}

type AssessmentsAPI struct{ Resource }

func (a *AssessmentsAPI) Stats(ctx context.Context, query url.Values) (*Envelope, error) {
	return a.get(ctx, "/assessments/stats", query)
}

// LibraryAPI's Resource is rooted at /library/resources.
type LibraryAPI struct{ Resource }

func (l *LibraryAPI) Overview(ctx context.Context, query url.Values) (*Envelope, error) {
	return l.get(ctx, "/library", query)
}

func (l *LibraryAPI) Search(ctx context.Context, query url.Values) (*Envelope, error) {
	return l.get(ctx, "/library/search", query)
}

func (l *LibraryAPI) Categories(ctx context.Context) (*Envelope, error) {
	return l.get(ctx, "/library/categories", nil)
}

// LearningAPI's Resource is rooted at /learning/content.
type LearningAPI struct{ Resource }

func (l *LearningAPI) Overview(ctx context.Context, query url.Values) (*Envelope, error) {
	return l.get(ctx, "/learning", query)
}

type FeedsAPI struct{ Resource }
