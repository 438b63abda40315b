package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/alerts"
	"storefront/internal/models"
)

var base = time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)

func windows() Windows {
	return Windows{PollCap: 5 * time.Minute, FallbackWindow: 5 * time.Minute, ExpirySanity: time.Hour}
}

func pending(expires *time.Time) models.Payment {
	return models.Payment{ID: 1, OrderID: 77, Method: models.MethodPix, Status: models.PaymentPending, PixCode: "000201pix", ExpiresAt: expires}
}

func at(d time.Duration) *time.Time {
	t := base.Add(d)
	return &t
}

func TestEffectiveExpiry(t *testing.T) {
	cases := []struct {
		name    string
		expires *time.Time
		want    time.Time
		expired bool
	}{
		{"far future is distrusted", at(90 * time.Minute), base.Add(5 * time.Minute), false},
		{"missing uses fallback", nil, base.Add(5 * time.Minute), false},
		{"within sanity is kept", at(30 * time.Minute), base.Add(30 * time.Minute), false},
		{"exactly at threshold is kept", at(time.Hour), base.Add(time.Hour), false},
		{"already past", at(-time.Second), base.Add(-time.Second), true},
		{"expires right now", at(0), base, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, expired := EffectiveExpiry(pending(c.expires), base, windows())
			if !got.Equal(c.want) || expired != c.expired {
				t.Fatalf("got (%v, %v), want (%v, %v)", got, expired, c.want, c.expired)
			}
		})
	}
}

func TestTrackerPastExpiryNeverCounts(t *testing.T) {
	tr := newTracker(pending(at(-time.Minute)), base, windows())
	if tr.status != models.PaymentExpired {
		t.Fatalf("status = %s", tr.status)
	}
	if tr.counting || tr.remaining(base) != 0 {
		t.Fatal("countdown must not start")
	}
	if tr.shouldPoll(base) {
		t.Fatal("an expired payment must not be polled")
	}
}

func TestTrackerCountdownClampedAndExpires(t *testing.T) {
	tr := newTracker(pending(at(50*time.Minute)), base, windows())
	if got := tr.remaining(base); got != 5*time.Minute {
		t.Fatalf("remaining = %v, want clamp to 5m", got)
	}

	tr = newTracker(pending(at(2*time.Minute)), base, windows())
	if got := tr.remaining(base.Add(30 * time.Second)); got != 90*time.Second {
		t.Fatalf("remaining = %v", got)
	}
	if tr.tick(base.Add(119 * time.Second)) {
		t.Fatal("expired too early")
	}
	if !tr.tick(base.Add(2 * time.Minute)) {
		t.Fatal("expected expiry at zero")
	}
	if tr.status != models.PaymentExpired || tr.counting {
		t.Fatalf("unexpected state %s counting=%v", tr.status, tr.counting)
	}
	if tr.tick(base.Add(3 * time.Minute)) {
		t.Fatal("second expiry reported")
	}
}

func TestTrackerPollCap(t *testing.T) {
	tr := newTracker(pending(nil), base, windows())
	if !tr.shouldPoll(base.Add(5*time.Minute - time.Millisecond)) {
		t.Fatal("should still poll just before the cap")
	}
	if tr.shouldPoll(base.Add(5 * time.Minute)) {
		t.Fatal("must stop polling at exactly 5 minutes")
	}
}

func TestTrackerObserve(t *testing.T) {
	tr := newTracker(pending(nil), base, windows())
	p := pending(nil)
	if tr.observe(p) {
		t.Fatal("pending is not terminal")
	}
	p.Status = models.PaymentApproved
	if !tr.observe(p) {
		t.Fatal("approved should finish the payment")
	}
	p.Status = models.PaymentRejected
	if tr.observe(p) || tr.status != models.PaymentApproved {
		t.Fatalf("terminal state changed to %s", tr.status)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(models.PaymentPending, models.PaymentExpired) {
		t.Fatal("expected pending -> expired to be allowed")
	}
	if CanTransition(models.PaymentApproved, models.PaymentPending) {
		t.Fatal("unexpected transition allowed")
	}
	if CanTransition(models.PaymentExpired, models.PaymentApproved) {
		t.Fatal("expired is terminal")
	}
	if Terminal(models.PaymentPending) {
		t.Fatal("pending is not terminal")
	}
}

// ------- Poller with real timers -------

type fakeAPI struct {
	mu    sync.Mutex
	seq   []models.Payment
	err   error
	calls int
}

func (f *fakeAPI) GetPayment(ctx context.Context, id int64) (models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Payment{}, f.err
	}
	i := f.calls - 1
	if i >= len(f.seq) {
		i = len(f.seq) - 1
	}
	p := f.seq[i]
	p.ID = id
	return p, nil
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type navRecorder struct {
	ch chan Redirect
}

func newNav() *navRecorder { return &navRecorder{ch: make(chan Redirect, 4)} }

func (n *navRecorder) navigate(r Redirect) { n.ch <- r }

func (n *navRecorder) wait(t *testing.T) Redirect {
	t.Helper()
	select {
	case r := <-n.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no redirect")
	}
	return Redirect{}
}

func fastConfig(f *fakeAPI, nav *navRecorder, rec *alerts.Recorder) Config {
	return Config{
		API:           f,
		Alerts:        rec,
		Navigate:      nav.navigate,
		PollInterval:  5 * time.Millisecond,
		RedirectDelay: 10 * time.Millisecond,
		CountdownTick: 5 * time.Millisecond,
	}
}

func TestPollerRedirectsOnTerminalStatus(t *testing.T) {
	cases := []struct {
		status models.PaymentStatus
		view   View
	}{
		{models.PaymentApproved, ViewSuccess},
		{models.PaymentRejected, ViewFailure},
		{models.PaymentCancelled, ViewFailure},
	}
	for _, c := range cases {
		t.Run(string(c.status), func(t *testing.T) {
			done := pending(nil)
			done.Status = c.status
			f := &fakeAPI{seq: []models.Payment{pending(nil), pending(nil), done}}
			nav := newNav()
			p := New(fastConfig(f, nav, &alerts.Recorder{}))
			defer p.Stop()

			if err := p.Watch(context.Background(), 9); err != nil {
				t.Fatal(err)
			}
			r := nav.wait(t)
			if r.View != c.view || r.PaymentID != 9 || r.OrderID != 77 {
				t.Fatalf("unexpected redirect %+v", r)
			}
			st := p.State()
			if st.Status != c.status || st.Polling {
				t.Fatalf("unexpected state %+v", st)
			}
		})
	}
}

func TestPollerStopsAtCap(t *testing.T) {
	f := &fakeAPI{seq: []models.Payment{pending(nil)}}
	cfg := fastConfig(f, newNav(), &alerts.Recorder{})
	cfg.PollCap = 40 * time.Millisecond
	p := New(cfg)
	defer p.Stop()

	if err := p.Watch(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for p.State().Polling {
		if time.Now().After(deadline) {
			t.Fatal("polling never stopped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	calls := f.count()
	if calls < 2 {
		t.Fatalf("expected some polls before the cap, got %d", calls)
	}
	time.Sleep(40 * time.Millisecond)
	if f.count() != calls {
		t.Fatalf("polled after the cap: %d -> %d", calls, f.count())
	}
	if st := p.State(); st.Status != models.PaymentPending {
		t.Fatalf("cap must not change status, got %s", st.Status)
	}
}

func TestPollerAlreadyExpired(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	f := &fakeAPI{seq: []models.Payment{pending(&past)}}
	nav := newNav()
	p := New(fastConfig(f, nav, &alerts.Recorder{}))
	defer p.Stop()

	if err := p.Watch(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	st := p.State()
	if st.Status != models.PaymentExpired || st.Counting || st.Polling || st.Remaining != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	if r := nav.wait(t); r.View != ViewFailure {
		t.Fatalf("unexpected redirect %+v", r)
	}
	if f.count() != 1 {
		t.Fatalf("expected only the initial load, got %d calls", f.count())
	}
}

func TestPollerCountdownExpires(t *testing.T) {
	soon := time.Now().Add(30 * time.Millisecond)
	f := &fakeAPI{seq: []models.Payment{pending(&soon)}}
	nav := newNav()
	p := New(fastConfig(f, nav, &alerts.Recorder{}))
	defer p.Stop()

	if err := p.Watch(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if r := nav.wait(t); r.View != ViewFailure {
		t.Fatalf("unexpected redirect %+v", r)
	}
	if st := p.State(); st.Status != models.PaymentExpired {
		t.Fatalf("status = %s", st.Status)
	}
}

func TestPollerRejectsOtherMethods(t *testing.T) {
	card := pending(nil)
	card.Method = "credit_card"
	f := &fakeAPI{seq: []models.Payment{card}}
	nav := newNav()
	rec := &alerts.Recorder{}
	p := New(fastConfig(f, nav, rec))

	err := p.Watch(context.Background(), 1)
	if !errors.Is(err, models.ErrWrongPaymentMethod) {
		t.Fatalf("expected ErrWrongPaymentMethod, got %v", err)
	}
	if r := nav.wait(t); r.View != ViewOrders {
		t.Fatalf("unexpected redirect %+v", r)
	}
	if p.Done() != nil {
		t.Fatal("nothing should be watched")
	}
	if last, _ := rec.Last(); last.Level != alerts.Error {
		t.Fatalf("expected error alert, got %+v", last)
	}
}

func TestWatchReplacesPreviousWatch(t *testing.T) {
	f := &fakeAPI{seq: []models.Payment{pending(nil)}}
	p := New(fastConfig(f, newNav(), &alerts.Recorder{}))
	defer p.Stop()

	if err := p.Watch(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	first := p.Done()
	if err := p.Watch(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	select {
	case <-first:
	default:
		t.Fatal("previous watch still running")
	}
	if st := p.State(); st.Payment.ID != 2 {
		t.Fatalf("watching %d", st.Payment.ID)
	}

	p.Stop()
	calls := f.count()
	time.Sleep(30 * time.Millisecond)
	if f.count() != calls {
		t.Fatal("timers survived Stop")
	}
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) WriteAll(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

func TestCopyCode(t *testing.T) {
	f := &fakeAPI{seq: []models.Payment{pending(nil)}}
	rec := &alerts.Recorder{}
	p := New(fastConfig(f, newNav(), rec))
	defer p.Stop()
	if err := p.Watch(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	cb := &fakeClipboard{}
	if err := p.CopyCode(cb); err != nil {
		t.Fatal(err)
	}
	if cb.text != "000201pix" {
		t.Fatalf("copied %q", cb.text)
	}
	if last, _ := rec.Last(); last.Level != alerts.Success {
		t.Fatalf("expected success alert, got %+v", last)
	}

	broken := &fakeClipboard{err: errors.New("no display")}
	if err := p.CopyCode(broken); err == nil {
		t.Fatal("expected error")
	}
	if last, _ := rec.Last(); last.Level != alerts.Error {
		t.Fatalf("expected error alert, got %+v", last)
	}
	if st := p.State(); st.Status != models.PaymentPending {
		t.Fatal("copy must not affect the payment state")
	}
}
