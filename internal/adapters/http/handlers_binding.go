package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusworks/console-identity-service/internal/application"
)

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	items, err := h.service.ListProviders(r.Context(), claims.AccountUID)
	if err != nil {
		writeMappedError(r.Context(), w, "list_providers", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"providers": items})
}

func (h *Handler) bindProvider(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	var req application.BindRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "bind_provider", err)
		return
	}

	if err := h.service.BindProvider(r.Context(), claims.AccountUID, chi.URLParam(r, "provider"), req); err != nil {
		writeMappedError(r.Context(), w, "bind_provider", err)
		return
	}
	writeMessage(w, http.StatusOK, "bound")
}

func (h *Handler) unbindProvider(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	var req application.UnbindRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "unbind_provider", err)
		return
	}

	if err := h.service.UnbindProvider(r.Context(), claims.AccountUID, chi.URLParam(r, "provider"), req); err != nil {
		writeMappedError(r.Context(), w, "unbind_provider", err)
		return
	}
	writeMessage(w, http.StatusOK, "unbound")
}

func (h *Handler) changeVerifyOld(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	var req application.ChangeVerifyOldRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_verify_old", err)
		return
	}

	res, err := h.service.ChangeVerifyOld(r.Context(), claims.AccountUID, chi.URLParam(r, "provider"), req)
	if err != nil {
		writeMappedError(r.Context(), w, "change_verify_old", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) changeVerifyNew(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	var req application.ChangeVerifyNewRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_verify_new", err)
		return
	}

	if err := h.service.ChangeVerifyNew(r.Context(), claims.AccountUID, chi.URLParam(r, "provider"), req); err != nil {
		writeMappedError(r.Context(), w, "change_verify_new", err)
		return
	}
	writeMessage(w, http.StatusOK, "changed")
}
