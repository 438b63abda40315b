package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/api"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

type errorBody struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Code: code, Detail: detail})
}

// errorStatus maps service and repository errors onto HTTP responses.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, models.ErrNoRecord),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrTicketNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Acesso negado"
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "E-mail ou senha inválidos"
	case errors.Is(err, models.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge, api.CodeAttachmentTooLarge, "Anexo muito grande"
	case errors.Is(err, models.ErrEmptyMessage):
		return http.StatusBadRequest, "EMPTY_MESSAGE", "Mensagem vazia"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, services.ErrInvalidSignature):
		return http.StatusBadRequest, "INVALID_SIGNATURE", err.Error()
	case errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, repositories.ErrStatusChanged):
		return http.StatusConflict, "CONFLICT", err.Error()
	}
	return http.StatusInternalServerError, "INTERNAL", "Erro interno"
}

func fail(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status, code, detail := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "op", op, "err", err)
	}
	writeError(w, status, code, detail)
}

// caller returns the authenticated user or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	id, role, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Não autenticado")
	}
	return id, role, ok
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return false
	}
	return true
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
