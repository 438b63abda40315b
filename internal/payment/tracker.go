package payment

import (
	"time"

	"storefront/internal/models"
	"storefront/internal/timeutil"
)

// Windows holds the timing rules for one PIX payment.
type Windows struct {
	PollCap        time.Duration
	FallbackWindow time.Duration
	ExpirySanity   time.Duration
}

// EffectiveExpiry picks the instant the countdown runs against. A missing
// server expiry, or one further away than the sanity threshold, is replaced
// by now+FallbackWindow. expired is true when the server expiry has already
// passed.
func EffectiveExpiry(p models.Payment, now time.Time, w Windows) (at time.Time, expired bool) {
	if p.ExpiresAt == nil || p.ExpiresAt.IsZero() {
		return now.Add(w.FallbackWindow), false
	}
	remaining := p.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return *p.ExpiresAt, true
	}
	if remaining > w.ExpirySanity {
		return now.Add(w.FallbackWindow), false
	}
	return *p.ExpiresAt, false
}

// tracker is the state machine for a single payment. It has no timers of
// its own; every step takes the current time.
type tracker struct {
	w         Windows
	payment   models.Payment
	status    models.PaymentStatus
	expiresAt time.Time
	startedAt time.Time
	counting  bool
}

func newTracker(p models.Payment, now time.Time, w Windows) *tracker {
	t := &tracker{w: w, payment: p, status: models.PaymentPending, startedAt: now}
	at, expired := EffectiveExpiry(p, now, w)
	t.expiresAt = at

	switch {
	case Terminal(p.Status):
		t.status = p.Status
	case expired:
		t.status = models.PaymentExpired
	default:
		t.counting = true
	}
	return t
}

// remaining is the time left on the countdown, never more than the
// fallback window.
func (t *tracker) remaining(now time.Time) time.Duration {
	if !t.counting {
		return 0
	}
	return timeutil.Clamp(t.expiresAt.Sub(now), 0, t.w.FallbackWindow)
}

// tick advances the countdown. It reports true when this tick expired the
// payment.
func (t *tracker) tick(now time.Time) bool {
	if !t.counting {
		return false
	}
	if t.remaining(now) > 0 {
		return false
	}
	t.counting = false
	return t.transition(models.PaymentExpired)
}

// shouldPoll is true while the payment is pending and the poll cap has not
// been reached.
func (t *tracker) shouldPoll(now time.Time) bool {
	return t.status == models.PaymentPending && now.Sub(t.startedAt) < t.w.PollCap
}

// observe folds a fresh server copy in. It reports true when the payment
// reached a terminal status because of it.
func (t *tracker) observe(p models.Payment) bool {
	t.payment = p
	if !Terminal(p.Status) {
		return false
	}
	if !t.transition(p.Status) {
		return false
	}
	t.counting = false
	return true
}

func (t *tracker) transition(to models.PaymentStatus) bool {
	if t.status == to || !CanTransition(t.status, to) {
		return false
	}
	t.status = to
	return true
}
