package http

import (
	"net/http"

	"github.com/viralforge/sessionauth/internal/application"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "email", "password", "full_name")
	if err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}

	userID, err := h.service.Register(r.Context(), fields["email"], fields["password"], fields["full_name"])
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]string{"user_id": userID.String()})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := identityFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "change_password")
		return
	}
	fields, err := readFields(r, "old_password", "new_password")
	if err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.Email, fields["old_password"], fields["new_password"]); err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := identityFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "delete_user")
		return
	}

	if err := h.service.DeleteUser(r.Context(), user.Email); err != nil {
		writeMappedError(r.Context(), w, "delete_user", err)
		return
	}
	writeMessage(w, http.StatusOK, "user deleted")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := identityFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "me")
		return
	}
	writeJSON(w, http.StatusOK, application.ProfileFromUser(user))
}
