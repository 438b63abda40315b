// Package payment drives a pending PIX payment to a terminal state by
// polling the payments API and running a local expiry countdown.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/alerts"
	"storefront/internal/api"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/timeutil"
)

var ErrNoPixCode = errors.New("payment has no pix code")

type API interface {
	GetPayment(ctx context.Context, id int64) (models.Payment, error)
}

// Clipboard receives the PIX copy-paste code.
type Clipboard interface {
	WriteAll(text string) error
}

type Redirect struct {
	View      View
	PaymentID int64
	OrderID   int64
}

// Config wires a Poller. Zero durations take the defaults.
type Config struct {
	API    API
	Alerts alerts.Sink
	Logger *slog.Logger
	// Navigate is called from the watch goroutine and must not call Stop.
	Navigate func(Redirect)
	Now      func() time.Time

	PollInterval   time.Duration
	PollCap        time.Duration
	FallbackWindow time.Duration
	ExpirySanity   time.Duration
	RedirectDelay  time.Duration
	CountdownTick  time.Duration
}

// State is what a payment screen renders.
type State struct {
	Payment   models.Payment
	Status    models.PaymentStatus
	ExpiresAt time.Time
	Remaining time.Duration
	Polling   bool
	Counting  bool
}

// Poller follows one PIX payment at a time until it settles or times out.
type Poller struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	active *watch
}

type watch struct {
	id     int64
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	tr      *tracker
	polling bool
}

// New returns a Poller with no payment watched.
func New(cfg Config) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Alerts == nil {
		cfg.Alerts = alerts.Discard
	}
	if cfg.Navigate == nil {
		cfg.Navigate = func(Redirect) {}
	}
	if cfg.Now == nil {
		cfg.Now = timeutil.Now
	}
	setDefault(&cfg.PollInterval, 5*time.Second)
	setDefault(&cfg.PollCap, 5*time.Minute)
	setDefault(&cfg.FallbackWindow, 5*time.Minute)
	setDefault(&cfg.ExpirySanity, time.Hour)
	setDefault(&cfg.RedirectDelay, 3*time.Second)
	setDefault(&cfg.CountdownTick, time.Second)
	return &Poller{cfg: cfg, logger: cfg.Logger.With("component", "payment")}
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

func (p *Poller) windows() Windows {
	return Windows{PollCap: p.cfg.PollCap, FallbackWindow: p.cfg.FallbackWindow, ExpirySanity: p.cfg.ExpirySanity}
}

// Watch loads payment id and starts its countdown and status poll. Any
// previous watch is stopped first, timers included. A payment that is not
// PIX sends the user back to the orders view.
func (p *Poller) Watch(ctx context.Context, id int64) error {
	p.Stop()
	logger := p.logger.With("op", "payment.watch", "payment_id", id)

	pay, err := p.cfg.API.GetPayment(ctx, id)
	if err != nil {
		logger.Error("load payment", "kind", api.Classify(err), "err", err)
		if api.IsNotFound(err) {
			alerts.Emit(p.cfg.Alerts, alerts.Error, "Pagamento", "Pagamento não encontrado")
			return fmt.Errorf("%w: %d", models.ErrPaymentNotFound, id)
		}
		alerts.Emit(p.cfg.Alerts, alerts.Error, "Pagamento", "Não foi possível carregar o pagamento")
		return err
	}
	if !strings.EqualFold(pay.Method, models.MethodPix) {
		logger.Warn("unexpected payment method", "method", pay.Method)
		alerts.Emit(p.cfg.Alerts, alerts.Error, "Pagamento", "Este pagamento não é PIX")
		p.cfg.Navigate(Redirect{View: ViewOrders, PaymentID: pay.ID, OrderID: pay.OrderID})
		return models.ErrWrongPaymentMethod
	}

	now := p.cfg.Now()
	tr := newTracker(pay, now, p.windows())
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &watch{id: id, cancel: cancel, done: make(chan struct{}), tr: tr, polling: tr.shouldPoll(now)}

	p.mu.Lock()
	p.active = w
	p.mu.Unlock()

	logger.Info("watching payment", "status", tr.status, "expires_at", tr.expiresAt)
	go p.run(runCtx, w)
	return nil
}

// Stop cancels every timer of the current watch and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	w := p.active
	p.active = nil
	p.mu.Unlock()
	if w == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Done is closed when the current watch ends, either by redirect or Stop.
// It returns nil when nothing is being watched.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	return p.active.done
}

func (p *Poller) State() State {
	p.mu.Lock()
	w := p.active
	p.mu.Unlock()
	if w == nil {
		return State{}
	}
	now := p.cfg.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Payment:   w.tr.payment,
		Status:    w.tr.status,
		ExpiresAt: w.tr.expiresAt,
		Remaining: w.tr.remaining(now),
		Polling:   w.polling,
		Counting:  w.tr.counting,
	}
}

// CopyCode puts the PIX code on the clipboard. The outcome is reported to
// the user either way and never retried.
func (p *Poller) CopyCode(cb Clipboard) error {
	code := p.State().Payment.PixCode
	if code == "" {
		alerts.Emit(p.cfg.Alerts, alerts.Error, "PIX", "Código PIX indisponível")
		return ErrNoPixCode
	}
	if err := cb.WriteAll(code); err != nil {
		p.logger.Warn("copy pix code", "err", err)
		alerts.Emit(p.cfg.Alerts, alerts.Error, "PIX", "Não foi possível copiar o código")
		return err
	}
	alerts.Emit(p.cfg.Alerts, alerts.Success, "PIX", "Código PIX copiado")
	return nil
}

func (p *Poller) run(ctx context.Context, w *watch) {
	defer close(w.done)
	logger := p.logger.With("op", "payment.run", "payment_id", w.id)

	var (
		countdownC <-chan time.Time
		pollC      <-chan time.Time
		capC       <-chan time.Time
		redirectC  <-chan time.Time
		redirectT  *time.Timer
	)
	defer func() {
		if redirectT != nil {
			redirectT.Stop()
		}
	}()

	w.mu.Lock()
	counting, polling, status := w.tr.counting, w.polling, w.tr.status
	w.mu.Unlock()

	if counting {
		t := time.NewTicker(p.cfg.CountdownTick)
		defer t.Stop()
		countdownC = t.C
	}
	if polling {
		pt := time.NewTicker(p.cfg.PollInterval)
		defer pt.Stop()
		pollC = pt.C
		ct := time.NewTimer(p.cfg.PollCap)
		defer ct.Stop()
		capC = ct.C
	}
	stopPolling := func() {
		pollC, capC = nil, nil
		w.mu.Lock()
		w.polling = false
		w.mu.Unlock()
	}
	scheduleRedirect := func(s models.PaymentStatus) {
		metrics.PaymentTerminalTotal.WithLabelValues(string(s)).Inc()
		countdownC = nil
		stopPolling()
		redirectT = time.NewTimer(p.cfg.RedirectDelay)
		redirectC = redirectT.C
		logger.Info("payment finished", "status", s)
	}
	if Terminal(status) {
		scheduleRedirect(status)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-countdownC:
			w.mu.Lock()
			expired := w.tr.tick(p.cfg.Now())
			w.mu.Unlock()
			if expired {
				scheduleRedirect(models.PaymentExpired)
			}

		case <-capC:
			logger.Info("poll cap reached")
			stopPolling()

		case <-pollC:
			w.mu.Lock()
			ok := w.tr.shouldPoll(p.cfg.Now())
			w.mu.Unlock()
			if !ok {
				stopPolling()
				continue
			}
			pay, err := p.cfg.API.GetPayment(ctx, w.id)
			metrics.PaymentPollsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("poll failed", "kind", api.Classify(err), "err", err)
				}
				continue
			}
			w.mu.Lock()
			finished := w.tr.observe(pay)
			status := w.tr.status
			w.mu.Unlock()
			if finished {
				scheduleRedirect(status)
			}

		case <-redirectC:
			w.mu.Lock()
			pay, status := w.tr.payment, w.tr.status
			w.mu.Unlock()
			p.cfg.Navigate(Redirect{View: ViewFor(status), PaymentID: pay.ID, OrderID: pay.OrderID})
			return
		}
	}
}
