// Package repositories stores the sandbox backend's users, notifications,
// payments and support tickets, either in memory or in MySQL/PostgreSQL.
package repositories

import (
	"context"
	"errors"
	"time"

	"storefront/internal/models"
)

// ErrStatusChanged is returned when an optimistic status update finds the
// row no longer in the expected status.
var ErrStatusChanged = errors.New("repositories: status changed concurrently")

type Users interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type Notifications interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	ListNotifications(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	DeleteNotification(ctx context.Context, userID, id int64) error
}

type Payments interface {
	CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error)
	GetPayment(ctx context.Context, id int64) (models.Payment, error)
	// UpdateStatus moves a payment from one status to another only if it
	// is still in from.
	UpdateStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (models.Payment, error)
	ListPending(ctx context.Context) ([]models.Payment, error)
}

type Tickets interface {
	CreateTicket(ctx context.Context, t models.Ticket) (models.Ticket, error)
	GetTicket(ctx context.Context, id int64) (models.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id int64, status string) (models.Ticket, error)
	CreateMessage(ctx context.Context, m models.Message) (models.Message, error)
	ListMessages(ctx context.Context, ticketID int64) ([]models.Message, error)
}

// Store bundles the repositories the sandbox needs.
type Store struct {
	Users         Users
	Notifications Notifications
	Payments      Payments
	Tickets       Tickets
}

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
