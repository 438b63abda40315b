package handlers

import (
	"log/slog"
	"net/http"

	"storefront/internal/services"
)

type AuthHandler struct {
	Service *services.AuthService
	Logger  *slog.Logger
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, user, err := h.Service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, orDefault(h.Logger), "auth.sign_in", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"user":         user,
	})
}
