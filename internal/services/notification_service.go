package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"storefront/internal/models"
	"storefront/internal/push"
	"storefront/internal/repositories"
)

const maxNotificationPage = 100

type NotificationService struct {
	Repo      repositories.Notifications
	Publisher Publisher
	// Mirror is optional.
	Mirror Mirror
	logger *slog.Logger
}

func NewNotificationService(repo repositories.Notifications, pub Publisher, mirror Mirror, logger *slog.Logger) *NotificationService {
	if pub == nil {
		pub = discardPublisher
	}
	return &NotificationService{
		Repo:      repo,
		Publisher: pub,
		Mirror:    mirror,
		logger:    orDefault(logger).With("component", "notifications"),
	}
}

func (s *NotificationService) List(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	return s.Repo.ListNotifications(ctx, userID, limit, unreadOnly)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.Repo.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return s.Repo.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.Repo.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id int64) error {
	return s.Repo.DeleteNotification(ctx, userID, id)
}

// NotificationInput is what admins and internal services send.
type NotificationInput struct {
	UserID  int64           `json:"user_id"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Create stores the notification, pushes it to the user's room and mirrors
// it when a mirror is configured.
func (s *NotificationService) Create(ctx context.Context, in NotificationInput) (models.Notification, error) {
	if in.UserID <= 0 || strings.TrimSpace(in.Title) == "" {
		return models.Notification{}, ErrInvalidInput
	}
	n, err := s.Repo.CreateNotification(ctx, models.Notification{
		UserID:  in.UserID,
		Type:    models.ParseNotificationCategory(in.Type),
		Title:   strings.TrimSpace(in.Title),
		Message: strings.TrimSpace(in.Message),
		Data:    in.Data,
	})
	if err != nil {
		return models.Notification{}, err
	}

	emit(ctx, s.Publisher, s.logger, push.UserRoom(n.UserID), push.EventNotification, n)
	if s.Mirror != nil {
		if err := s.Mirror.Mirror(ctx, n); err != nil {
			s.logger.Warn("mirror notification", "notification_id", n.ID, "err", err)
		}
	}
	return n, nil
}
