package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/services"
)

const maxCallbackBody = 64 << 10

type PaymentHandler struct {
	Service *services.PaymentService
	Logger  *slog.Logger
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID")
		return
	}
	p, err := h.Service.Get(r.Context(), userID, role, id)
	if err != nil {
		fail(w, orDefault(h.Logger), "payments.get", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Create is the sandbox admin endpoint that opens a PIX charge.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.PixRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Service.Create(r.Context(), req)
	if err != nil {
		fail(w, orDefault(h.Logger), "payments.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// SetStatus is the sandbox admin endpoint that resolves a payment.
func (h *PaymentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid payment ID")
		return
	}
	var req struct {
		Status models.PaymentStatus `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		fail(w, orDefault(h.Logger), "payments.set_status", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Callback receives provider notifications signed with HMAC-SHA256.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	p, err := h.Service.HandleCallback(r.Context(), body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		fail(w, orDefault(h.Logger), "payments.callback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment_id": p.ID, "status": p.Status})
}
