package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/messaging"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/push"
	"storefront/internal/repositories"
	"storefront/utils"
)

type published struct {
	room string
	env  push.Envelope
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(_ context.Context, room string, env push.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{room: room, env: env})
	return nil
}

func (p *fakePublisher) byType(t string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.env.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeMirror struct {
	got []models.Notification
	err error
}

func (m *fakeMirror) Mirror(_ context.Context, n models.Notification) error {
	m.got = append(m.got, n)
	return m.err
}

type fakeUploader struct {
	folder, contentType string
	data                []byte
}

func (u *fakeUploader) Upload(file []byte, fileName, folder, contentType string) (string, error) {
	u.data, u.folder, u.contentType = file, folder, contentType
	return "https://cdn.example.com/" + folder + "/" + fileName, nil
}

type fixture struct {
	store         repositories.Store
	pub           *fakePublisher
	mirror        *fakeMirror
	notifications *NotificationService
	payments      *PaymentService
	tickets       *TicketService
}

func newFixture() *fixture {
	f := &fixture{store: repositories.NewMemoryStore(), pub: &fakePublisher{}, mirror: &fakeMirror{}}
	f.notifications = NewNotificationService(f.store.Notifications, f.pub, f.mirror, nil)
	f.payments = NewPaymentService(f.store.Payments, f.notifications,
		PixPayee{Key: "loja@example.com", Name: "Loja Infantil", City: "SAO PAULO"}, "whsec", nil)
	f.tickets = NewTicketService(f.store.Tickets, f.pub, f.notifications, nil, nil)
	return f
}

func TestNotificationCreatePublishesAndMirrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	n, err := f.notifications.Create(ctx, NotificationInput{UserID: 3, Type: "promo", Title: " Cupom "})
	if err != nil {
		t.Fatal(err)
	}
	if n.Type != models.CategorySystem || n.Title != "Cupom" {
		t.Fatalf("unexpected notification %+v", n)
	}
	events := f.pub.byType(push.EventNotification)
	if len(events) != 1 || events[0].room != "user:3" {
		t.Fatalf("unexpected events %+v", events)
	}
	var pushed models.Notification
	if err := json.Unmarshal(events[0].env.Data, &pushed); err != nil || pushed.ID != n.ID {
		t.Fatalf("pushed %+v, %v", pushed, err)
	}
	if len(f.mirror.got) != 1 {
		t.Fatal("notification not mirrored")
	}

	f.mirror.err = errors.New("fcm down")
	if _, err := f.notifications.Create(ctx, NotificationInput{UserID: 3, Title: "Outra"}); err != nil {
		t.Fatalf("mirror failure must not fail create: %v", err)
	}
	if _, err := f.notifications.Create(ctx, NotificationInput{UserID: 3}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPaymentLifecycleNotifiesOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f.payments.Now = func() time.Time { return now }

	p, err := f.payments.Create(ctx, PixRequest{UserID: 3, OrderID: 77, Amount: 89.9})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.PaymentPending || p.Method != models.MethodPix {
		t.Fatalf("unexpected payment %+v", p)
	}
	if p.ExpiresAt == nil || !p.ExpiresAt.Equal(now.Add(defaultPixTTL)) {
		t.Fatalf("expires_at = %v", p.ExpiresAt)
	}
	if !strings.HasPrefix(p.PixCode, "000201") || !strings.Contains(p.PixCode, "br.gov.bcb.pix") {
		t.Fatalf("pix code = %q", p.PixCode)
	}

	if _, err := f.payments.Get(ctx, 4, models.RoleCustomer, p.ID); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.payments.Get(ctx, 4, models.RoleStaff, p.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.payments.SetStatus(ctx, p.ID, models.PaymentApproved)
	if err != nil || got.Status != models.PaymentApproved {
		t.Fatalf("set status: %+v, %v", got, err)
	}
	if _, err := f.payments.SetStatus(ctx, p.ID, models.PaymentApproved); err != nil {
		t.Fatalf("same status must be a no-op, got %v", err)
	}
	if _, err := f.payments.SetStatus(ctx, p.ID, models.PaymentRejected); !errors.Is(err, payment.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	list, _ := f.notifications.List(ctx, 3, 0, false)
	if len(list) != 1 || list[0].Type != models.CategoryOrder || list[0].Title != "Pagamento aprovado" {
		t.Fatalf("owner notifications %+v", list)
	}
}

func TestPaymentCreateVariants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	card, err := f.payments.Create(ctx, PixRequest{UserID: 1, Amount: 10, Method: "card"})
	if err != nil {
		t.Fatal(err)
	}
	if card.PixCode != "" || card.ExpiresAt != nil {
		t.Fatalf("card payment got pix fields: %+v", card)
	}
	open, _ := f.payments.Create(ctx, PixRequest{UserID: 1, Amount: 10, NoExpiry: true})
	if open.ExpiresAt != nil {
		t.Fatal("no_expiry ignored")
	}
	if _, err := f.payments.Create(ctx, PixRequest{UserID: 1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSettle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f.payments.Now = func() time.Time { return start }

	expiring, _ := f.payments.Create(ctx, PixRequest{UserID: 1, Amount: 10, ExpiresInSeconds: 60})
	long, _ := f.payments.Create(ctx, PixRequest{UserID: 1, Amount: 10, ExpiresInSeconds: 3600})

	n, err := f.payments.Settle(ctx, start.Add(2*time.Minute), 0)
	if err != nil || n != 1 {
		t.Fatalf("settled %d, %v", n, err)
	}
	p, _ := f.store.Payments.GetPayment(ctx, expiring.ID)
	if p.Status != models.PaymentCancelled {
		t.Fatalf("expired payment status %s", p.Status)
	}

	n, _ = f.payments.Settle(ctx, start.Add(5*time.Minute), 5*time.Minute)
	p, _ = f.store.Payments.GetPayment(ctx, long.ID)
	if n != 1 || p.Status != models.PaymentApproved {
		t.Fatalf("auto approve: %d, %s", n, p.Status)
	}
}

func TestHandleCallback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.payments.Create(ctx, PixRequest{UserID: 1, Amount: 10})

	body, _ := json.Marshal(CallbackPayload{PaymentID: p.ID, Status: "paid"})
	if _, err := f.payments.HandleCallback(ctx, body, "deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	got, err := f.payments.HandleCallback(ctx, body, payment.SignHMAC(body, "whsec"))
	if err != nil || got.Status != models.PaymentApproved {
		t.Fatalf("callback: %+v, %v", got, err)
	}

	odd, _ := json.Marshal(CallbackPayload{PaymentID: p.ID, Status: "weird"})
	if _, err := f.payments.HandleCallback(ctx, odd, payment.SignHMAC(odd, "whsec")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestTicketSendRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk, _ := f.tickets.Create(ctx, 3, "Troca", "")

	if _, err := f.tickets.Send(ctx, 4, models.RoleCustomer, tk.ID, models.OutgoingMessage{Content: "oi"}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.tickets.Send(ctx, 3, models.RoleCustomer, tk.ID, models.OutgoingMessage{Content: "  "}); !errors.Is(err, models.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := f.tickets.Send(ctx, 3, models.RoleCustomer, 999, models.OutgoingMessage{Content: "oi"}); !errors.Is(err, models.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}

	f.tickets.MaxAttachmentBytes = 4
	big := models.OutgoingMessage{Type: models.MessagePDF, AttachmentURL: dataURL("application/pdf", []byte("%PDF-1.4"))}
	if _, err := f.tickets.Send(ctx, 3, models.RoleCustomer, tk.ID, big); !errors.Is(err, models.ErrAttachmentTooLarge) {
		t.Fatalf("expected ErrAttachmentTooLarge, got %v", err)
	}

	msg, err := f.tickets.Send(ctx, 3, models.RoleCustomer, tk.ID, models.OutgoingMessage{Content: " oi "})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "oi" || msg.Type != models.MessageText || msg.IsStaff {
		t.Fatalf("unexpected message %+v", msg)
	}
	events := f.pub.byType(push.EventNewMessage)
	if len(events) != 1 || events[0].room != push.TicketRoom(tk.ID) {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestTicketStaffReplyUploadsAndNotifies(t *testing.T) {
	f := newFixture()
	up := &fakeUploader{}
	f.tickets.Uploader = up
	ctx := context.Background()
	tk, _ := f.tickets.Create(ctx, 3, "Troca", "")

	in := models.OutgoingMessage{
		Content:        "segue a etiqueta",
		Type:           models.MessagePDF,
		AttachmentURL:  dataURL("application/pdf", []byte("%PDF-1.4")),
		AttachmentName: "etiqueta.pdf",
	}
	msg, err := f.tickets.Send(ctx, 9, models.RoleStaff, tk.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsStaff || !strings.HasPrefix(msg.AttachmentURL, "https://cdn.example.com/tickets/") {
		t.Fatalf("unexpected message %+v", msg)
	}
	if string(up.data) != "%PDF-1.4" || up.contentType != "application/pdf" || msg.AttachmentSize != 8 {
		t.Fatalf("upload got %q %q, size %d", up.data, up.contentType, msg.AttachmentSize)
	}
	list, _ := f.notifications.List(ctx, 3, 0, false)
	if len(list) != 1 || list[0].Title != "Nova resposta do suporte" {
		t.Fatalf("owner notifications %+v", list)
	}
}

func TestTicketSetStatusPublishes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk, _ := f.tickets.Create(ctx, 3, "Troca", "")
	if _, err := f.tickets.SetStatus(ctx, tk.ID, "archived"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	got, err := f.tickets.SetStatus(ctx, tk.ID, models.TicketResolved)
	if err != nil || got.Status != models.TicketResolved {
		t.Fatalf("%+v, %v", got, err)
	}
	if len(f.pub.byType(push.EventTicketUpdated)) != 1 {
		t.Fatal("ticket update not pushed")
	}
}

func TestBuildPixCode(t *testing.T) {
	got := BuildPixCode(PixPayee{Key: "loja@example.com", Name: "Loja Infantil", City: "SAO PAULO"}, 89.90, "ABC123")
	want := "00020126380014br.gov.bcb.pix0116loja@example.com520400005303986540589.905802BR5913Loja Infantil6009SAO PAULO62100506ABC1236304F69F"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
	if crc16("123456789") != 0x29B1 {
		t.Fatal("crc16 check value mismatch")
	}
}

func TestAuthSeedAndSignIn(t *testing.T) {
	store := repositories.NewMemoryStore()
	tokens, _ := utils.NewManager("secret")
	auth := NewAuthService(store.Users, tokens)
	ctx := context.Background()

	users := []config.DemoUser{{ID: 3, Name: "Ana", Email: "ana@example.com", Password: "senha123"}}
	if n, err := auth.Seed(ctx, users); err != nil || n != 1 {
		t.Fatalf("seed: %d, %v", n, err)
	}
	if n, _ := auth.Seed(ctx, users); n != 0 {
		t.Fatal("seed must be idempotent")
	}

	if _, _, err := auth.SignIn(ctx, "ana@example.com", "errada"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := auth.SignIn(ctx, "bia@example.com", "senha123"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
	tok, user, err := auth.SignIn(ctx, " ana@example.com ", "senha123")
	if err != nil {
		t.Fatal(err)
	}
	id, role, err := tokens.Parse(tok)
	if err != nil || id != 3 || role != models.RoleCustomer || user.ID != 3 {
		t.Fatalf("token claims %d %q, %v", id, role, err)
	}
}

func TestBrokerRelaysToLocalHub(t *testing.T) {
	local := &fakePublisher{}
	b := NewRedisBroker(nil, "", local, nil)
	env, _ := push.NewEvent(push.EventNotification, map[string]int{"id": 1})
	frame, _ := json.Marshal(brokerFrame{Room: "user:1", Envelope: env})

	b.relay(context.Background(), string(frame))
	b.relay(context.Background(), "not json")

	if len(local.events) != 1 || local.events[0].room != "user:1" || local.events[0].env.Type != push.EventNotification {
		t.Fatalf("relayed %+v", local.events)
	}
}

type fakeMessaging struct {
	msg *messaging.Message
}

func (f *fakeMessaging) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.msg = m
	return "projects/x/messages/1", nil
}

func TestFCMMirrorTargetsUserTopic(t *testing.T) {
	fm := &fakeMessaging{}
	m := &FCMMirror{client: fm, logger: orDefault(nil)}
	n := models.Notification{ID: 5, UserID: 3, Type: models.CategoryCoupon, Title: "Cupom", Message: "10% off"}
	if err := m.Mirror(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if fm.msg.Topic != "user-3" || fm.msg.Notification.Title != "Cupom" || fm.msg.Data["type"] != "coupon" {
		t.Fatalf("unexpected message %+v", fm.msg)
	}
}
