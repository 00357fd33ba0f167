package http

import (
	"net/http"

	"github.com/nimbusworks/console-identity-service/internal/application"
)

func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req application.SendCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "send_code", err)
		return
	}

	res, err := h.service.SendCode(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "send_code", err)
		return
	}
	writeSuccess(w, http.StatusAccepted, res)
}

func (h *Handler) signInCode(w http.ResponseWriter, r *http.Request) {
	var req application.SignInCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "signin_code", err)
		return
	}

	res, err := h.service.SignInWithCode(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "signin_code", err)
		return
	}
	writeSuccess(w, signInStatus(res), res)
}

func (h *Handler) signInPassword(w http.ResponseWriter, r *http.Request) {
	var req application.SignInPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "signin_password", err)
		return
	}

	res, err := h.service.SignInWithPassword(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "signin_password", err)
		return
	}
	writeSuccess(w, signInStatus(res), res)
}

func (h *Handler) signInOAuth(w http.ResponseWriter, r *http.Request) {
	var req application.SignInOAuthRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "signin_oauth", err)
		return
	}

	res, err := h.service.SignInWithOAuth(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "signin_oauth", err)
		return
	}
	writeSuccess(w, signInStatus(res), res)
}

func signInStatus(res application.SignInResponse) int {
	if res.NewAccount {
		return http.StatusCreated
	}
	return http.StatusOK
}
