package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/application"
)

func (h *Handler) listRegions(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListRegions(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "list_regions", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"regions": items})
}

func (h *Handler) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	regionUID, err := uuid.Parse(chi.URLParam(r, "regionUID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid region uid")
		return
	}

	items, err := h.service.ListWorkspaces(r.Context(), claims.AccountUID, regionUID)
	if err != nil {
		writeMappedError(r.Context(), w, "list_workspaces", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"workspaces": items})
}

func (h *Handler) regionToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	var req application.RegionTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "region_token", err)
		return
	}

	res, err := h.service.ExchangeRegionToken(r.Context(), claims.AccountUID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "region_token", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
