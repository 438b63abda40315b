package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
	// PaymentExpired is never sent by the server; the client infers it
	// from the local clock.
	PaymentExpired PaymentStatus = "expired"
)

// MethodPix is the only payment method the PIX poller accepts.
const MethodPix = "pix"

type Payment struct {
	ID        int64         `json:"id"`
	OrderID   int64         `json:"order_id"`
	UserID    int64         `json:"user_id,omitempty"`
	Method    string        `json:"method"`
	Status    PaymentStatus `json:"status"`
	Amount    float64       `json:"amount"`
	QRCode    string        `json:"qr_code,omitempty"`
	PixCode   string        `json:"pix_code,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}
