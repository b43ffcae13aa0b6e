package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kulsmauinformatics/sumatin/internal/authz"
	"github.com/kulsmauinformatics/sumatin/pkg/health"
	"github.com/kulsmauinformatics/sumatin/pkg/middleware"
)

// RouterConfig carries the collaborators of the portal router.
type RouterConfig struct {
	Health *health.Handler
	// Sessions attaches the portal session to each request.
	Sessions func(http.Handler) http.Handler
	Gate     *authz.Gate
	// RateLimit guards the credential endpoints.
	RateLimit      func(http.Handler) http.Handler
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all portal routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 45 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("portal"))
	r.Use(middleware.Tracing("portal"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	h := NewHandler(logger)
	g := cfg.Gate

	r.Group(func(r chi.Router) {
		r.Use(cfg.Sessions)
		r.Use(middleware.NoStore)

		r.Get("/session", h.Session)

		// Signed-out only
		r.Group(func(r chi.Router) {
			r.Use(g.PublicOnly())
			r.Get("/login", h.LoginView)
			r.With(cfg.RateLimit).Post("/login", h.Login)
			r.With(cfg.RateLimit).Post("/register", h.Register)
		})

		// Credential recovery works signed in or not.
		r.Group(func(r chi.Router) {
			r.Use(cfg.RateLimit)
			r.Post("/password/forgot", h.ForgotPassword)
			r.Post("/password/reset", h.ResetPassword)
			r.Post("/email/verify", h.VerifyEmail)
		})

		r.Group(func(r chi.Router) {
			r.Use(g.Require(authz.Authenticated))

			r.Get("/", h.Root)
			r.Post("/logout", h.Logout)
			r.Get("/nav", h.Nav)
			r.Get("/dashboard", h.Dashboard)

			r.Get("/profile", h.Profile)
			r.Put("/profile", h.UpdateProfile)
			r.Put("/profile/password", h.ChangePassword)
			r.Post("/profile/picture", h.UploadPicture)

			r.Route("/grades", func(r chi.Router) {
				r.Get("/", h.listOf(grades, nil))
				r.Get("/{id}", h.getOf(grades))
				r.Get("/{id}/students", h.fetch(http.StatusOK, gradeStudents))
				r.Get("/{id}/attendance", h.fetch(http.StatusOK, gradeAttendance))
				r.Get("/{id}/assessments", h.fetch(http.StatusOK, gradeAssessments))
				r.Get("/{id}/learning", h.fetch(http.StatusOK, gradeLearning))
			})

			r.Route("/students/{id}", func(r chi.Router) {
				r.Get("/attendance", h.fetch(http.StatusOK, studentAttendance))
				r.Get("/assessments", h.fetch(http.StatusOK, studentAssessments))
			})

			r.Route("/attendance", func(r chi.Router) {
				r.Get("/", h.listOf(attendance, nil))
				r.Get("/stats", h.fetch(http.StatusOK, attendanceStats))
				r.Get("/records", h.listOf(attendance, nil))
				r.Group(func(r chi.Router) {
					r.Use(g.Require(authz.TeacherOrAdmin))
					r.Get("/take", h.page("Take Attendance", "Record attendance for a class"))
					r.Post("/take", h.withBody(http.StatusCreated, takeAttendance))
				})
			})

			r.Route("/assessments", func(r chi.Router) {
				r.Get("/", h.listOf(assessments, nil))
				r.Get("/stats", h.fetch(http.StatusOK, assessmentStats))
				r.Get("/results", h.listOf(assessments, nil))
				r.With(g.Require(authz.TeacherOrAdmin)).Get("/grade", h.page("Grade Assessments", "Grade submitted assessments"))
				r.Get("/{id}", h.getOf(assessments))
			})

			r.Route("/library", func(r chi.Router) {
				r.Get("/", h.fetch(http.StatusOK, libraryOverview))
				r.Get("/search", h.fetch(http.StatusOK, librarySearch))
				r.Get("/categories", h.fetch(http.StatusOK, libraryCategories))
				r.Get("/resources", h.listOf(library, nil))
				r.Get("/resources/{id}", h.getOf(library))
			})

			r.Route("/learning", func(r chi.Router) {
				r.Get("/", h.fetch(http.StatusOK, learningOverview))
				r.Get("/content", h.listOf(learning, nil))
				r.Get("/content/{id}", h.getOf(learning))
				r.Group(func(r chi.Router) {
					r.Use(g.Require(authz.TeacherOrAdmin))
					r.Get("/create", h.page("Create Content", "Publish learning material"))
					r.Post("/content", h.createOf(learning))
					r.Get("/my-content", h.listOf(learning, nil))
				})
			})

			r.Route("/feeds", func(r chi.Router) {
				r.Get("/", h.listOf(feeds, nil))
				r.Get("/{id}", h.getOf(feeds))
				r.Post("/", h.createOf(feeds))
			})

			r.Get("/reports", h.page("Reports", "Generate school reports"))
			r.Get("/reports/*", h.page("Reports", "Generate school reports"))
			r.With(g.Require(authz.StudentOrAbove)).Get("/calendar", h.page("Calendar", "Upcoming school events"))

			r.With(g.Require(authz.TeacherOrAdmin)).Get("/classes", h.Classes)
			r.With(g.Require(authz.ParentOrAdmin)).Get("/children", h.Children)

			// Administration
			r.Group(func(r chi.Router) {
				r.Use(g.Require(authz.AdminOnly))

				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.listOf(users, nil))
					r.Post("/", h.createOf(users))
					r.Get("/search", h.fetch(http.StatusOK, searchUsers))
					r.Get("/stats", h.fetch(http.StatusOK, userStats))
					r.Get("/teachers", h.listOf(users, roleFilter("teacher")))
					r.Get("/students", h.listOf(users, roleFilter("student")))
					r.Get("/parents", h.listOf(users, roleFilter("parent")))
					r.Get("/{id}", h.getOf(users))
					r.Put("/{id}", h.updateOf(users))
					r.Delete("/{id}", h.deleteOf(users))
					r.Patch("/{id}/status", h.ToggleUserStatus)
					r.Patch("/{id}/password", h.ResetUserPassword)
				})

				r.Route("/schools", func(r chi.Router) {
					r.Get("/", h.listOf(schools, nil))
					r.Post("/", h.createOf(schools))
					r.Get("/{id}", h.getOf(schools))
					r.Put("/{id}", h.updateOf(schools))
					r.Delete("/{id}", h.deleteOf(schools))
					r.Get("/{id}/stats", h.fetch(http.StatusOK, schoolStats))
					r.Get("/{id}/grades", h.fetch(http.StatusOK, schoolGrades))
					r.Get("/{id}/teachers", h.fetch(http.StatusOK, schoolTeachers))
					r.Get("/{id}/feeds", h.fetch(http.StatusOK, schoolFeeds))
				})

				r.Get("/settings", h.page("Settings", "System settings"))
				r.Get("/settings/*", h.page("Settings", "System settings"))
			})
		})
	})

	return r
}
