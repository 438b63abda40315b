package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"storefront/internal/models"
	"storefront/internal/push"
	"storefront/internal/repositories"
)

const defaultMaxAttachmentBytes = 10 << 20

// Uploader stores attachment bytes and returns a public URL.
type Uploader interface {
	Upload(file []byte, fileName, folder, contentType string) (string, error)
}

type TicketService struct {
	Repo          repositories.Tickets
	Publisher     Publisher
	Notifications *NotificationService
	// Uploader is optional; without it attachments stay inline.
	Uploader           Uploader
	MaxAttachmentBytes int64
	logger             *slog.Logger
}

func NewTicketService(repo repositories.Tickets, pub Publisher, notifications *NotificationService, uploader Uploader, logger *slog.Logger) *TicketService {
	if pub == nil {
		pub = discardPublisher
	}
	return &TicketService{
		Repo:               repo,
		Publisher:          pub,
		Notifications:      notifications,
		Uploader:           uploader,
		MaxAttachmentBytes: defaultMaxAttachmentBytes,
		logger:             orDefault(logger).With("component", "tickets"),
	}
}

func (s *TicketService) Create(ctx context.Context, userID int64, subject, priority string) (models.Ticket, error) {
	subject = strings.TrimSpace(subject)
	if userID <= 0 || subject == "" {
		return models.Ticket{}, ErrInvalidInput
	}
	return s.Repo.CreateTicket(ctx, models.Ticket{UserID: userID, Subject: subject, Priority: priority})
}

// Get returns the ticket if userID opened it or role is staff.
func (s *TicketService) Get(ctx context.Context, userID int64, role string, id int64) (models.Ticket, error) {
	t, err := s.Repo.GetTicket(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if t.UserID != userID && !isStaff(role) {
		return models.Ticket{}, models.ErrForbidden
	}
	return t, nil
}

func (s *TicketService) Messages(ctx context.Context, userID int64, role string, ticketID int64) ([]models.Message, error) {
	if _, err := s.Get(ctx, userID, role, ticketID); err != nil {
		return nil, err
	}
	return s.Repo.ListMessages(ctx, ticketID)
}

// Send validates and stores a message, then pushes it to the ticket room.
// Staff replies also notify the ticket owner.
func (s *TicketService) Send(ctx context.Context, userID int64, role string, ticketID int64, in models.OutgoingMessage) (models.Message, error) {
	ticket, err := s.Get(ctx, userID, role, ticketID)
	if err != nil {
		return models.Message{}, err
	}

	in.Content = strings.TrimSpace(in.Content)
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return models.Message{}, ErrInvalidInput
	}
	if in.Type == models.MessageText && in.Content == "" {
		return models.Message{}, models.ErrEmptyMessage
	}
	if in.Type != models.MessageText && in.AttachmentURL == "" {
		return models.Message{}, ErrInvalidInput
	}

	msg := models.Message{
		TicketID:       ticketID,
		SenderID:       userID,
		IsStaff:        isStaff(role),
		Content:        in.Content,
		Type:           in.Type,
		AttachmentURL:  in.AttachmentURL,
		AttachmentName: in.AttachmentName,
		AttachmentSize: in.AttachmentSize,
	}
	if strings.HasPrefix(in.AttachmentURL, "data:") {
		if err := s.storeInline(&msg); err != nil {
			return models.Message{}, err
		}
	}

	saved, err := s.Repo.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	emit(ctx, s.Publisher, s.logger, push.TicketRoom(ticketID), push.EventNewMessage, saved)

	if saved.IsStaff && s.Notifications != nil && ticket.UserID != userID {
		if _, err := s.Notifications.Create(ctx, NotificationInput{
			UserID:  ticket.UserID,
			Type:    string(models.CategorySystem),
			Title:   "Nova resposta do suporte",
			Message: fmt.Sprintf("Seu chamado #%d recebeu uma resposta.", ticketID),
		}); err != nil {
			s.logger.Warn("notify ticket owner", "ticket_id", ticketID, "err", err)
		}
	}
	return saved, nil
}

// storeInline checks the decoded size of a data URL attachment and, with
// an uploader configured, swaps it for an uploaded object URL.
func (s *TicketService) storeInline(msg *models.Message) error {
	mime, data, err := decodeDataURL(msg.AttachmentURL)
	if err != nil {
		return ErrInvalidInput
	}
	if int64(len(data)) > s.MaxAttachmentBytes {
		return models.ErrAttachmentTooLarge
	}
	msg.AttachmentSize = int64(len(data))
	if s.Uploader == nil {
		return nil
	}

	name := msg.AttachmentName
	if name == "" {
		name = string(msg.Type)
	}
	key := uuid.NewString() + "-" + name
	url, err := s.Uploader.Upload(data, key, fmt.Sprintf("tickets/%d", msg.TicketID), mime)
	if err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}
	msg.AttachmentURL = url
	return nil
}

func decodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data url is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

// SetStatus changes the ticket status and pushes the updated ticket.
func (s *TicketService) SetStatus(ctx context.Context, id int64, status string) (models.Ticket, error) {
	switch status {
	case models.TicketOpen, models.TicketInProgress, models.TicketResolved, models.TicketClosed:
	default:
		return models.Ticket{}, ErrInvalidInput
	}
	t, err := s.Repo.UpdateTicketStatus(ctx, id, status)
	if err != nil {
		return models.Ticket{}, err
	}
	emit(ctx, s.Publisher, s.logger, push.TicketRoom(id), push.EventTicketUpdated, t)
	return t, nil
}
