package http

import (
	"net/http"

	"github.com/kulsmauinformatics/sumatin/internal/authz"
	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/navigation"
	"github.com/kulsmauinformatics/sumatin/internal/session"
	"github.com/kulsmauinformatics/sumatin/pkg/httputil"
	"github.com/kulsmauinformatics/sumatin/pkg/validator"
)

type loginRequest struct {
	domain.Credentials
	From string `json:"from,omitempty" validate:"omitempty,max=2048"`
}

type registerRequest struct {
	domain.Registration
	From string `json:"from,omitempty" validate:"omitempty,max=2048"`
}

// LoginResponse tells the browser who signed in and where to go next.
type LoginResponse struct {
	User     *domain.User `json:"user"`
	Redirect string       `json:"redirect"`
}

// SessionResponse describes the current session.
type SessionResponse struct {
	Status     session.Status    `json:"status"`
	User       *domain.User      `json:"user,omitempty"`
	Refreshing bool              `json:"refreshing,omitempty"`
	Menu       []navigation.Item `json:"menu,omitempty"`
}

// LoginView handles GET /login.
func (h *Handler) LoginView(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, "Sign in", "Sign in to SUMATIN", map[string]string{"from": r.URL.Query().Get("from")})
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	from := req.From
	if from == "" {
		from = r.URL.Query().Get("from")
	}

	res := ctl.Login(r.Context(), req.Credentials)
	if !res.Success {
		writeResult(w, res, http.StatusUnauthorized, "LOGIN_FAILED")
		return
	}
	httputil.WriteData(w, http.StatusOK, LoginResponse{User: res.User, Redirect: safeRedirect(from)})
}

// Register handles POST /register. A successful registration signs the
// user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}

	res := ctl.Register(r.Context(), req.Registration)
	if !res.Success {
		writeResult(w, res, http.StatusUnprocessableEntity, "REGISTRATION_FAILED")
		return
	}
	httputil.WriteData(w, http.StatusOK, LoginResponse{User: res.User, Redirect: safeRedirect(req.From)})
}

// Logout handles POST /logout. It always succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctl.Logout(r.Context())
	httputil.WriteData(w, http.StatusOK, LoginResponse{Redirect: authz.LoginPath})
}

// ForgotPassword handles POST /password/forgot.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req domain.PasswordResetRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	writeResult(w, ctl.RequestPasswordReset(r.Context(), req.Email), http.StatusUnprocessableEntity, "RESET_REQUEST_FAILED")
}

// ResetPassword handles POST /password/reset.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req domain.PasswordReset
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	writeResult(w, ctl.ResetPassword(r.Context(), req), http.StatusUnprocessableEntity, "RESET_FAILED")
}

// VerifyEmail handles POST /email/verify.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req domain.EmailVerification
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	writeResult(w, ctl.VerifyEmail(r.Context(), req), http.StatusUnprocessableEntity, "VERIFICATION_FAILED")
}

// Session handles GET /session. It never blocks on a restoring session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	snap := ctl.Snapshot()
	resp := SessionResponse{
		Status:     snap.Status,
		User:       snap.User,
		Refreshing: ctl.API().Client().Refreshing(),
	}
	if snap.LoggedIn() {
		resp.Menu = navigation.Menu(snap.Role())
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

// Nav handles GET /nav?path=.
func (h *Handler) Nav(w http.ResponseWriter, r *http.Request) {
	snap := session.SnapshotFromContext(r.Context())
	items := navigation.Menu(snap.Role())
	if p := r.URL.Query().Get("path"); p != "" {
		items = navigation.MarkActive(items, p)
	}
	httputil.WriteData(w, http.StatusOK, items)
}
