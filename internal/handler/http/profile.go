package http

import (
	"errors"
	"net/http"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/pkg/httputil"
	"github.com/kulsmauinformatics/sumatin/pkg/validator"
)

const (
	maxPictureBytes = 5 << 20
	profilePicture  = "/auth/profile/picture"
)

// Profile handles GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, "Profile", "Manage your account", nil)
}

// UpdateProfile handles PUT /profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req domain.ProfileUpdate
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	writeResult(w, ctl.UpdateProfile(r.Context(), req), http.StatusUnprocessableEntity, "PROFILE_UPDATE_FAILED")
}

// ChangePassword handles PUT /profile/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req domain.PasswordChange
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		writeInvalid(w, err)
		return
	}
	writeResult(w, ctl.ChangePassword(r.Context(), req), http.StatusUnprocessableEntity, "PASSWORD_CHANGE_FAILED")
}

// UploadPicture handles POST /profile/picture. The file is forwarded to
// the backend as multipart field "file".
func (h *Handler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	api, ok := h.api(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPictureBytes+1<<10)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "a picture file is required"
		if errors.As(err, &tooLarge) {
			msg = "picture exceeds 5 MB"
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: msg},
		})
		return
	}
	defer f.Close()

	env, err := api.Upload(r.Context(), profilePicture, apiclient.File{Name: hdr.Filename, Content: f}, nil)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, env)
}
