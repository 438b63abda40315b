package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/services"
)

// maxMessageBody leaves room for a 10MB attachment after base64 inflation.
const maxMessageBody = 16 << 20

// TicketHandler serves support tickets and their chat messages.
type TicketHandler struct {
	Service *services.TicketService
	Logger  *slog.Logger
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Subject  string `json:"subject"`
		Priority string `json:"priority"`
	}
	if !decode(w, r, &req) {
		return
	}
	t, err := h.Service.Create(r.Context(), userID, req.Subject, req.Priority)
	if err != nil {
		fail(w, orDefault(h.Logger), "tickets.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID")
		return
	}
	t, err := h.Service.Get(r.Context(), userID, role, id)
	if err != nil {
		fail(w, orDefault(h.Logger), "tickets.get", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TicketHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID")
		return
	}
	msgs, err := h.Service.Messages(r.Context(), userID, role, id)
	if err != nil {
		fail(w, orDefault(h.Logger), "tickets.messages", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageList{Messages: msgs})
}

func (h *TicketHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID")
		return
	}
	var in models.OutgoingMessage
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBody)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(w, orDefault(h.Logger), "tickets.send", models.ErrAttachmentTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}
	msg, err := h.Service.Send(r.Context(), userID, role, id, in)
	if err != nil {
		fail(w, orDefault(h.Logger), "tickets.send", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SetStatus is the staff endpoint that moves a ticket along.
func (h *TicketHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	t, err := h.Service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		fail(w, orDefault(h.Logger), "tickets.set_status", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
