package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/repositories"
	"storefront/utils"
)

var ErrInvalidSignature = errors.New("invalid callback signature")

const defaultPixTTL = 30 * time.Minute

type PaymentService struct {
	Repo          repositories.Payments
	Notifications *NotificationService
	Payee         PixPayee
	WebhookSecret string
	Now           func() time.Time
	logger        *slog.Logger
}

func NewPaymentService(repo repositories.Payments, notifications *NotificationService, payee PixPayee, webhookSecret string, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		Repo:          repo,
		Notifications: notifications,
		Payee:         payee,
		WebhookSecret: webhookSecret,
		Now:           time.Now,
		logger:        orDefault(logger).With("component", "payments"),
	}
}

func isStaff(role string) bool {
	return role == models.RoleStaff || role == models.RoleAdmin
}

// Get returns the payment if userID owns it or role is staff.
func (s *PaymentService) Get(ctx context.Context, userID int64, role string, id int64) (models.Payment, error) {
	p, err := s.Repo.GetPayment(ctx, id)
	if err != nil {
		return models.Payment{}, err
	}
	if p.UserID != userID && !isStaff(role) {
		return models.Payment{}, models.ErrForbidden
	}
	return p, nil
}

// PixRequest creates a payment from the sandbox admin API. ExpiresAt, when
// set, overrides ExpiresInSeconds so clients can be fed odd expiries.
type PixRequest struct {
	UserID           int64      `json:"user_id"`
	OrderID          int64      `json:"order_id"`
	Amount           float64    `json:"amount"`
	Method           string     `json:"method,omitempty"`
	ExpiresInSeconds int        `json:"expires_in_seconds,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	NoExpiry         bool       `json:"no_expiry,omitempty"`
}

func (s *PaymentService) Create(ctx context.Context, req PixRequest) (models.Payment, error) {
	if req.UserID <= 0 || req.Amount <= 0 {
		return models.Payment{}, ErrInvalidInput
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = models.MethodPix
	}

	now := s.Now().UTC()
	p := models.Payment{
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Method:    method,
		Status:    models.PaymentPending,
		Amount:    req.Amount,
		CreatedAt: now,
	}
	if method == models.MethodPix {
		txid, err := utils.RandomHex(12)
		if err != nil {
			return models.Payment{}, err
		}
		p.PixCode = BuildPixCode(s.Payee, req.Amount, strings.ToUpper(txid))

		switch {
		case req.NoExpiry:
		case req.ExpiresAt != nil:
			exp := req.ExpiresAt.UTC()
			p.ExpiresAt = &exp
		default:
			ttl := defaultPixTTL
			if req.ExpiresInSeconds > 0 {
				ttl = time.Duration(req.ExpiresInSeconds) * time.Second
			}
			exp := now.Add(ttl)
			p.ExpiresAt = &exp
		}
	}
	return s.Repo.CreatePayment(ctx, p)
}

// SetStatus moves the payment to status and notifies its owner. Setting the
// current status again is a no-op.
func (s *PaymentService) SetStatus(ctx context.Context, id int64, status models.PaymentStatus) (models.Payment, error) {
	if status == models.PaymentExpired {
		return models.Payment{}, fmt.Errorf("%w: expired is never set by the server", payment.ErrInvalidTransition)
	}
	current, err := s.Repo.GetPayment(ctx, id)
	if err != nil {
		return models.Payment{}, err
	}
	if current.Status == status {
		return current, nil
	}
	p, err := s.Repo.UpdateStatus(ctx, id, current.Status, status)
	if err != nil {
		return p, err
	}
	s.logger.Info("payment status changed", "payment_id", id, "from", current.Status, "to", status)
	s.notify(ctx, p)
	return p, nil
}

func (s *PaymentService) notify(ctx context.Context, p models.Payment) {
	if s.Notifications == nil {
		return
	}
	var title, msg string
	switch p.Status {
	case models.PaymentApproved:
		title, msg = "Pagamento aprovado", fmt.Sprintf("Recebemos o pagamento do pedido #%d.", p.OrderID)
	case models.PaymentRejected:
		title, msg = "Pagamento recusado", fmt.Sprintf("O pagamento do pedido #%d foi recusado.", p.OrderID)
	case models.PaymentCancelled:
		title, msg = "Pagamento cancelado", fmt.Sprintf("O pagamento do pedido #%d foi cancelado.", p.OrderID)
	default:
		return
	}
	data, _ := json.Marshal(map[string]interface{}{
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"status":     p.Status,
	})
	if _, err := s.Notifications.Create(ctx, NotificationInput{
		UserID:  p.UserID,
		Type:    string(models.CategoryOrder),
		Title:   title,
		Message: msg,
		Data:    data,
	}); err != nil {
		s.logger.Warn("notify payment owner", "payment_id", p.ID, "err", err)
	}
}

// Settle cancels pending payments past their expiry and, when
// autoApprove is positive, approves the ones older than it.
func (s *PaymentService) Settle(ctx context.Context, now time.Time, autoApprove time.Duration) (int, error) {
	pending, err := s.Repo.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range pending {
		var to models.PaymentStatus
		switch {
		case p.ExpiresAt != nil && !now.Before(*p.ExpiresAt):
			to = models.PaymentCancelled
		case autoApprove > 0 && now.Sub(p.CreatedAt) >= autoApprove:
			to = models.PaymentApproved
		default:
			continue
		}
		if _, err := s.SetStatus(ctx, p.ID, to); err != nil {
			if errors.Is(err, repositories.ErrStatusChanged) {
				continue
			}
			return settled, err
		}
		settled++
	}
	return settled, nil
}

// CallbackPayload is what the PIX provider posts back.
type CallbackPayload struct {
	PaymentID int64  `json:"payment_id"`
	Status    string `json:"status"`
}

// HandleCallback verifies the provider signature and applies the reported
// status.
func (s *PaymentService) HandleCallback(ctx context.Context, body []byte, signature string) (models.Payment, error) {
	if s.WebhookSecret == "" || !payment.VerifyHMAC(body, signature, s.WebhookSecret) {
		return models.Payment{}, ErrInvalidSignature
	}
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.PaymentID <= 0 {
		return models.Payment{}, ErrInvalidInput
	}

	var to models.PaymentStatus
	switch strings.ToLower(strings.TrimSpace(payload.Status)) {
	case "success", "succeeded", "paid", "done", "approved":
		to = models.PaymentApproved
	case "failure", "failed", "rejected", "error":
		to = models.PaymentRejected
	case "cancelled", "canceled", "expired":
		to = models.PaymentCancelled
	default:
		return models.Payment{}, ErrInvalidInput
	}
	return s.SetStatus(ctx, payload.PaymentID, to)
}
