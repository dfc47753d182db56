package http

import (
	"net/http"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "username", "password")
	if err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	pair, err := h.service.Login(r.Context(), fields["username"], fields["password"])
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeTokenPair(w, pair)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "refresh_token")
	if err != nil {
		writeValidationError(r.Context(), w, "refresh", err)
		return
	}

	pair, err := h.service.Refresh(r.Context(), fields["refresh_token"])
	if err != nil {
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	writeTokenPair(w, pair)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", err)
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
