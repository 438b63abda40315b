package payment

import (
	"errors"

	"storefront/internal/models"
)

var ErrInvalidTransition = errors.New("invalid payment status transition")

var transitions = map[models.PaymentStatus]map[models.PaymentStatus]struct{}{
	models.PaymentPending: {
		models.PaymentApproved:  {},
		models.PaymentRejected:  {},
		models.PaymentCancelled: {},
		models.PaymentExpired:   {},
	},
	models.PaymentApproved:  {},
	models.PaymentRejected:  {},
	models.PaymentCancelled: {},
	models.PaymentExpired:   {},
}

// CanTransition returns whether a payment can move from one status to another.
func CanTransition(from, to models.PaymentStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func Terminal(s models.PaymentStatus) bool {
	allowed, ok := transitions[s]
	return ok && len(allowed) == 0
}

// View is where the user is sent once the payment flow is over.
type View string

const (
	ViewSuccess View = "success"
	ViewFailure View = "failure"
	// ViewOrders is used when the payment cannot be shown at all.
	ViewOrders View = "orders"
)

// ViewFor maps a terminal status to its destination.
func ViewFor(s models.PaymentStatus) View {
	switch s {
	case models.PaymentApproved:
		return ViewSuccess
	case models.PaymentRejected, models.PaymentCancelled, models.PaymentExpired:
		return ViewFailure
	case models.PaymentPending:
		return ""
	}
	return ViewFailure
}
