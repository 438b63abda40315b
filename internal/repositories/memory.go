package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"storefront/internal/models"
	"storefront/internal/payment"
)

// Memory keeps everything in process. It is the sandbox default.
type Memory struct {
	mu sync.Mutex

	nextID        int64
	users         map[int64]models.User
	notifications map[int64]models.Notification
	payments      map[int64]models.Payment
	tickets       map[int64]models.Ticket
	messages      map[int64][]models.Message
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[int64]models.User),
		notifications: make(map[int64]models.Notification),
		payments:      make(map[int64]models.Payment),
		tickets:       make(map[int64]models.Ticket),
		messages:      make(map[int64][]models.Message),
	}
}

// NewMemoryStore returns a Store whose repositories all share one Memory.
func NewMemoryStore() Store {
	m := NewMemory()
	return Store{Users: m, Notifications: m, Payments: m, Tickets: m}
}

func (m *Memory) id(want int64) int64 {
	if want > m.nextID {
		m.nextID = want
		return want
	}
	m.nextID++
	return m.nextID
}

// ------- users -------

func (m *Memory) CreateUser(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.id(user.ID)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *Memory) GetUserByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

// ------- notifications -------

func (m *Memory) CreateNotification(_ context.Context, n models.Notification) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.id(0)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	m.notifications[n.ID] = n
	return n, nil
}

// ListNotifications returns newest first.
func (m *Memory) ListNotifications(_ context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for _, n := range m.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountUnread(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *Memory) MarkRead(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return models.ErrNoRecord
	}
	n.IsRead = true
	m.notifications[id] = n
	return nil
}

func (m *Memory) MarkAllRead(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			m.notifications[id] = n
		}
	}
	return nil
}

func (m *Memory) DeleteNotification(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return models.ErrNoRecord
	}
	delete(m.notifications, id)
	return nil
}

// ------- payments -------

func (m *Memory) CreatePayment(_ context.Context, p models.Payment) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id(0)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	m.payments[p.ID] = p
	return p, nil
}

func (m *Memory) GetPayment(_ context.Context, id int64) (models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return models.Payment{}, models.ErrPaymentNotFound
	}
	return p, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id int64, from, to models.PaymentStatus) (models.Payment, error) {
	if !payment.CanTransition(from, to) {
		return models.Payment{}, fmt.Errorf("%w: %s -> %s", payment.ErrInvalidTransition, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return models.Payment{}, models.ErrPaymentNotFound
	}
	if p.Status != from {
		return p, ErrStatusChanged
	}
	p.Status = to
	ts := now()
	p.UpdatedAt = &ts
	m.payments[id] = p
	return p, nil
}

func (m *Memory) ListPending(_ context.Context) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.payments {
		if p.Status == models.PaymentPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ------- tickets -------

func (m *Memory) CreateTicket(_ context.Context, t models.Ticket) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id(0)
	if t.Status == "" {
		t.Status = models.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	m.tickets[t.ID] = t
	return t, nil
}

func (m *Memory) GetTicket(_ context.Context, id int64) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, models.ErrTicketNotFound
	}
	return t, nil
}

func (m *Memory) UpdateTicketStatus(_ context.Context, id int64, status string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, models.ErrTicketNotFound
	}
	t.Status = status
	ts := now()
	t.UpdatedAt = &ts
	m.tickets[id] = t
	return t, nil
}

func (m *Memory) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[msg.TicketID]; !ok {
		return models.Message{}, models.ErrTicketNotFound
	}
	msg.ID = m.id(0)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	m.messages[msg.TicketID] = append(m.messages[msg.TicketID], msg)
	return msg, nil
}

// ListMessages returns oldest first.
func (m *Memory) ListMessages(_ context.Context, ticketID int64) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[ticketID]; !ok {
		return nil, models.ErrTicketNotFound
	}
	out := make([]models.Message, len(m.messages[ticketID]))
	copy(out, m.messages[ticketID])
	return out, nil
}
