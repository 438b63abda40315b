package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"storefront/internal/models"
)

// Mirror forwards a new notification to another delivery channel.
type Mirror interface {
	Mirror(ctx context.Context, n models.Notification) error
}

type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMMirror sends notifications to the FCM topic user-<id> so devices
// subscribed for that user get them too.
type FCMMirror struct {
	client messagingClient
	logger *slog.Logger
}

func NewFCMMirror(ctx context.Context, credentialsFile string, logger *slog.Logger) (*FCMMirror, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FCMMirror{client: client, logger: orDefault(logger).With("component", "fcm")}, nil
}

func UserTopic(userID int64) string { return "user-" + strconv.FormatInt(userID, 10) }

func (m *FCMMirror) Mirror(ctx context.Context, n models.Notification) error {
	msg := &messaging.Message{
		Topic: UserTopic(n.UserID),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"notification_id": strconv.FormatInt(n.ID, 10),
			"type":            string(n.Type),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: n.Title,
						Body:  n.Message,
					},
					Sound: "default",
				},
			},
		},
	}

	id, err := m.client.Send(ctx, msg)
	if err != nil {
		return err
	}
	m.logger.Debug("mirrored", "notification_id", n.ID, "message_id", id)
	return nil
}
