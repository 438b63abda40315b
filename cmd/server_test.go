package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/push"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/utils"
)

type sandbox struct {
	app   *application
	store repositories.Store
	srv   *httptest.Server
}

func newSandbox(t *testing.T) *sandbox {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	store := repositories.NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default().Sandbox
	cfg.JWTSecret = "test-secret"
	cfg.Users = []config.DemoUser{
		{ID: 1, Name: "Ana", Email: "ana@example.com", Password: "secret"},
		{ID: 2, Name: "Bruno", Email: "bruno@example.com", Password: "secret"},
		{ID: 10, Name: "Suporte", Email: "suporte@example.com", Password: "secret", Role: models.RoleStaff},
		{ID: 99, Name: "Admin", Email: "admin@example.com", Password: "secret", Role: models.RoleAdmin},
	}
	app, err := initializeApp(ctx, cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)), quiet, quiet)
	if err != nil {
		t.Fatalf("initializeApp: %v", err)
	}
	go app.wsManager.Run(ctx)

	srv := httptest.NewServer(app.routes())
	t.Cleanup(srv.Close)
	return &sandbox{app: app, store: store, srv: srv}
}

func (s *sandbox) token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := s.app.tokens.NewJWT(userID, role, time.Hour)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	return tok
}

func (s *sandbox) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, s.srv.URL+path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *sandbox) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, env push.Envelope) {
	t.Helper()
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", env.Type, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) push.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env push.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

// settle sends an unknown command and waits for its error reply. Commands
// are handled in order, so everything sent before is in effect afterwards.
func settle(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, push.Envelope{Type: "sync"})
	if env := read(t, conn); env.Type != push.EventError {
		t.Fatalf("expected error reply, got %q", env.Type)
	}
}

func TestJWTMiddleware(t *testing.T) {
	s := newSandbox(t)
	input := map[string]interface{}{"order_id": 5, "user_id": 1, "amount": 10.5, "method": "pix"}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"missing token", http.MethodGet, "/api/notifications", "", nil, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/notifications", "not-a-jwt", nil, http.StatusUnauthorized},
		{"customer route", http.MethodGet, "/api/notifications", s.token(t, 1, models.RoleCustomer), nil, http.StatusOK},
		{"customer on admin route", http.MethodPost, "/sandbox/payments", s.token(t, 1, models.RoleCustomer), input, http.StatusForbidden},
		{"staff on admin route", http.MethodPost, "/sandbox/payments", s.token(t, 10, models.RoleStaff), input, http.StatusForbidden},
		{"admin route", http.MethodPost, "/sandbox/payments", s.token(t, 99, models.RoleAdmin), input, http.StatusCreated},
		{"staff route passes auth", http.MethodPut, "/sandbox/tickets/404/status", s.token(t, 10, models.RoleStaff), map[string]string{"status": "closed"}, http.StatusNotFound},
		{"webhook without signature", http.MethodPost, "/webhooks/pix", "", map[string]interface{}{"payment_id": 1, "status": "paid"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestTokenSignedWithAnotherKeyRejected(t *testing.T) {
	s := newSandbox(t)
	other, err := utils.NewManager("another-secret")
	if err != nil {
		t.Fatal(err)
	}
	tok, err := other.NewJWT(1, models.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if resp := s.do(t, http.MethodGet, "/api/notifications", tok, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	expired, err := s.app.tokens.NewJWT(1, models.RoleCustomer, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if resp := s.do(t, http.MethodGet, "/api/notifications", expired, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired: status = %d, want 401", resp.StatusCode)
	}
}

func TestRoleAllowed(t *testing.T) {
	tests := []struct {
		required, role string
		want           bool
	}{
		{models.RoleCustomer, models.RoleCustomer, true},
		{models.RoleCustomer, models.RoleStaff, true},
		{models.RoleCustomer, "", false},
		{models.RoleStaff, models.RoleCustomer, false},
		{models.RoleStaff, models.RoleStaff, true},
		{models.RoleStaff, models.RoleAdmin, true},
		{models.RoleAdmin, models.RoleStaff, false},
		{models.RoleAdmin, models.RoleAdmin, true},
	}
	for _, tt := range tests {
		if got := roleAllowed(tt.required, tt.role); got != tt.want {
			t.Errorf("roleAllowed(%q, %q) = %v, want %v", tt.required, tt.role, got, tt.want)
		}
	}
}

func TestHubDeliversNotificationToOwnRoom(t *testing.T) {
	s := newSandbox(t)
	ana := s.dial(t, s.token(t, 1, models.RoleCustomer))
	bruno := s.dial(t, s.token(t, 2, models.RoleCustomer))

	send(t, ana, push.Envelope{Type: push.CommandSubscribe, Room: push.UserRoom(1)})
	settle(t, ana)
	send(t, bruno, push.Envelope{Type: push.CommandSubscribe})
	settle(t, bruno)

	resp := s.do(t, http.MethodPost, "/sandbox/notifications", s.token(t, 99, models.RoleAdmin), services.NotificationInput{
		UserID: 1, Type: "order", Title: "Pedido enviado", Message: "Seu pedido saiu para entrega",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create notification: %d", resp.StatusCode)
	}

	env := read(t, ana)
	if env.Type != push.EventNotification || env.Room != push.UserRoom(1) {
		t.Fatalf("unexpected event %+v", env)
	}
	var n models.Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatal(err)
	}
	if n.UserID != 1 || n.Title != "Pedido enviado" || n.Type != models.CategoryOrder {
		t.Fatalf("unexpected notification %+v", n)
	}

	// Bruno only sees the reply to his own probe.
	settle(t, bruno)
}

func TestHubRejectsForeignRooms(t *testing.T) {
	s := newSandbox(t)
	ticket, err := s.store.Tickets.CreateTicket(context.Background(), models.Ticket{UserID: 1, Subject: "Troca de tamanho"})
	if err != nil {
		t.Fatal(err)
	}
	bruno := s.dial(t, s.token(t, 2, models.RoleCustomer))

	send(t, bruno, push.Envelope{Type: push.CommandSubscribe, Room: push.UserRoom(1)})
	if env := read(t, bruno); env.Type != push.EventError {
		t.Fatalf("subscribe to another user: got %q", env.Type)
	}
	send(t, bruno, push.Envelope{Type: push.CommandJoinTicket, TicketID: ticket.ID})
	if env := read(t, bruno); env.Type != push.EventError {
		t.Fatalf("join another user's ticket: got %q", env.Type)
	}
	send(t, bruno, push.Envelope{Type: push.CommandJoinTicket})
	if env := read(t, bruno); env.Type != push.EventError {
		t.Fatalf("join without id: got %q", env.Type)
	}
}

func TestHubTicketRoom(t *testing.T) {
	s := newSandbox(t)
	ticket, err := s.store.Tickets.CreateTicket(context.Background(), models.Ticket{UserID: 1, Subject: "Troca de tamanho"})
	if err != nil {
		t.Fatal(err)
	}
	ana := s.dial(t, s.token(t, 1, models.RoleCustomer))
	staff := s.dial(t, s.token(t, 10, models.RoleStaff))

	send(t, ana, push.Envelope{Type: push.CommandJoinTicket, TicketID: ticket.ID})
	settle(t, ana)
	send(t, staff, push.Envelope{Type: push.CommandJoinTicket, TicketID: ticket.ID})
	settle(t, staff)

	path := "/api/tickets/" + itoa(ticket.ID) + "/messages"
	resp := s.do(t, http.MethodPost, path, s.token(t, 10, models.RoleStaff), models.OutgoingMessage{Content: "Já trocamos o tamanho", Type: models.MessageText})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("staff reply: %d", resp.StatusCode)
	}

	for name, conn := range map[string]*websocket.Conn{"customer": ana, "staff": staff} {
		env := read(t, conn)
		if env.Type != push.EventNewMessage || env.Room != push.TicketRoom(ticket.ID) {
			t.Fatalf("%s: unexpected event %+v", name, env)
		}
		var m models.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			t.Fatal(err)
		}
		if !m.IsStaff || m.TicketID != ticket.ID {
			t.Fatalf("%s: unexpected message %+v", name, m)
		}
	}

	send(t, ana, push.Envelope{Type: push.CommandLeaveTicket, TicketID: ticket.ID})
	settle(t, ana)
	resp = s.do(t, http.MethodPut, "/sandbox/tickets/"+itoa(ticket.ID)+"/status", s.token(t, 10, models.RoleStaff), map[string]string{"status": models.TicketResolved})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d", resp.StatusCode)
	}
	if env := read(t, staff); env.Type != push.EventTicketUpdated {
		t.Fatalf("staff: got %q", env.Type)
	}
	// After leaving, the next frame Ana gets is her own probe reply.
	settle(t, ana)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "https://evil.example", true},
		{[]string{"http://localhost:3000"}, "", true},
		{[]string{"http://localhost:3000"}, "http://localhost:3000", true},
		{[]string{"http://localhost:3000/"}, "http://localhost:3000", true},
		{[]string{"http://localhost:3000"}, "http://localhost:5173", false},
		{[]string{"*"}, "https://loja.example", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(tt.allowed)(r); got != tt.want {
			t.Errorf("checkOrigin(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
		}
	}
}

func TestSettlerCancelsExpiredPayments(t *testing.T) {
	s := newSandbox(t)
	past := time.Now().Add(-time.Minute)
	p, err := s.store.Payments.CreatePayment(context.Background(), models.Payment{
		OrderID: 7, UserID: 1, Method: models.MethodPix, Status: models.PaymentPending, Amount: 49.9, ExpiresAt: &past,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quiet := log.New(io.Discard, "", 0)
	startSettler(ctx, s.app.payments, 10*time.Millisecond, 0, quiet, quiet)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.store.Payments.GetPayment(context.Background(), p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == models.PaymentCancelled {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want cancelled", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
