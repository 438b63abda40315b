package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"storefront/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(Config{BaseURL: ts.URL, Tokens: StaticToken("tok")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestListNotificationsSendsAuthAndQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id")
		}
		if r.URL.Query().Get("limit") != "20" || r.URL.Query().Get("unread_only") != "true" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"notifications":[{"id":1,"type":"coupon","title":"t","message":"m","is_read":false},{"id":2,"type":"weird"}]}`))
	})

	list, err := c.ListNotifications(context.Background(), ListOptions{Limit: 20, UnreadOnly: true})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}
	if list[0].Type != models.CategoryCoupon {
		t.Errorf("expected coupon, got %q", list[0].Type)
	}
	if list[1].Type != models.CategorySystem {
		t.Errorf("unknown category should map to system, got %q", list[1].Type)
	}
}

func TestSendMessageAttachmentTooLarge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var msg models.OutgoingMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		if msg.Type != models.MessagePDF {
			t.Errorf("unexpected type %q", msg.Type)
		}
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"code":"ATTACHMENT_TOO_LARGE","detail":"Arquivo muito grande"}`))
	})

	_, err := c.SendMessage(context.Background(), 9, models.OutgoingMessage{Type: models.MessagePDF, AttachmentURL: "data:application/pdf;base64,AA=="})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAttachmentTooLarge(err) {
		t.Fatalf("expected attachment too large, got %v", err)
	}
	if Detail(err) != "Arquivo muito grande" {
		t.Errorf("unexpected detail %q", Detail(err))
	}
	if Classify(err) != KindValidation {
		t.Errorf("unexpected kind %v", Classify(err))
	}
}

func TestNon2xxReturnsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	})

	_, err := c.GetPayment(context.Background(), 1)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Status != "404 Not Found" {
		t.Errorf("unexpected status %d %q", apiErr.StatusCode, apiErr.Status)
	}
	if !IsNotFound(err) {
		t.Error("expected not found classification")
	}
}

func TestTransportErrorClassification(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.UnreadCount(context.Background())
	if Classify(err) != KindTransport {
		t.Fatalf("expected transport error, got %v (%T)", err, err)
	}
}

func TestMutationsUseExpectedRoutes(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	if err := c.MarkNotificationRead(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkAllNotificationsRead(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteNotification(ctx, 6); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"PUT /api/notifications/5/read",
		"PUT /api/notifications/read-all",
		"DELETE /api/notifications/6",
	}
	mu.Lock()
	defer mu.Unlock()
	for i, w := range want {
		if i >= len(seen) || seen[i] != w {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}
