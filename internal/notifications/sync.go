// Package notifications keeps a live, de-duplicated notification list and
// unread count for the signed-in user.
package notifications

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/alerts"
	"storefront/internal/api"
	"storefront/internal/metrics"
	"storefront/internal/models"
)

const (
	defaultPageSize = 20
	defaultFallback = 30 * time.Second
	mutationTimeout = 15 * time.Second
)

// API is the subset of the REST client the sync needs.
type API interface {
	ListNotifications(ctx context.Context, opts api.ListOptions) ([]models.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Channel is a push connection. *push.Client satisfies it.
type Channel interface {
	OnNotification(fn func(models.Notification))
	Connect(ctx context.Context) error
	SubscribeUser(userID int64) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Config wires a Sync. Zero intervals and sizes take the defaults.
type Config struct {
	API    API
	Alerts alerts.Sink
	Logger *slog.Logger

	// NewChannel returns a fresh push connection per session. Nil disables
	// push and polls from the start.
	NewChannel func() Channel

	PageSize         int
	FallbackInterval time.Duration
}

// State is a point-in-time copy of the list.
type State struct {
	Notifications []models.Notification
	Unread        int
	Polling       bool
}

// Sync keeps one user's notification list and unread count current.
type Sync struct {
	api      API
	alerts   alerts.Sink
	logger   *slog.Logger
	newCh    func() Channel
	pageSize int
	fallback time.Duration

	mu      sync.Mutex
	items   []models.Notification
	unread  int
	polling bool
	gen     uint64

	// run bookkeeping, only touched from session watcher callbacks
	runMu     sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}

	inflight sync.WaitGroup
}

// New returns an idle Sync; Bind or Run starts it.
func New(cfg Config) *Sync {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Alerts
	if sink == nil {
		sink = alerts.Discard
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	fallback := cfg.FallbackInterval
	if fallback <= 0 {
		fallback = defaultFallback
	}
	return &Sync{
		api:      cfg.API,
		alerts:   sink,
		logger:   logger.With("component", "notifications"),
		newCh:    cfg.NewChannel,
		pageSize: pageSize,
		fallback: fallback,
	}
}

func (s *Sync) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.items))
	copy(out, s.items)
	return State{Notifications: out, Unread: s.unread, Polling: s.polling}
}

func (s *Sync) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Refresh replaces the local list and unread count with the server's. On
// failure the previous state is kept and the error is only logged.
func (s *Sync) Refresh(ctx context.Context) error {
	logger := s.logger.With("op", "notifications.refresh")

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	list, err := s.api.ListNotifications(ctx, api.ListOptions{Limit: s.pageSize})
	if err == nil {
		var count int
		count, err = s.api.UnreadCount(ctx)
		if err == nil {
			s.mu.Lock()
			// a reset while the request was in flight wins
			if s.gen == gen {
				s.items = append([]models.Notification(nil), list...)
				s.unread = count
			}
			s.mu.Unlock()
		}
	}
	metrics.NotificationRefreshTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		logger.Warn("refresh failed", "kind", api.Classify(err), "err", err)
		return err
	}
	logger.Debug("refreshed", "count", len(list))
	return nil
}

// MarkAsRead flips the local flag right away and tells the server in the
// background. The local change is not undone if the server call fails.
func (s *Sync) MarkAsRead(ctx context.Context, id int64) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].IsRead {
				s.items[i].IsRead = true
				s.unread = max(s.unread-1, 0)
			}
			break
		}
	}
	s.mu.Unlock()

	s.background(ctx, "notifications.mark_read", "Não foi possível marcar como lida", func(ctx context.Context) error {
		return s.api.MarkNotificationRead(ctx, id)
	})
}

func (s *Sync) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.unread = 0
	s.mu.Unlock()

	s.background(ctx, "notifications.mark_all_read", "Não foi possível marcar todas como lidas", func(ctx context.Context) error {
		return s.api.MarkAllNotificationsRead(ctx)
	})
}

func (s *Sync) Delete(ctx context.Context, id int64) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].IsRead {
				s.unread = max(s.unread-1, 0)
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.background(ctx, "notifications.delete", "Não foi possível remover a notificação", func(ctx context.Context) error {
		return s.api.DeleteNotification(ctx, id)
	})
}

// Wait blocks until every background server update has returned.
func (s *Sync) Wait() { s.inflight.Wait() }

func (s *Sync) background(ctx context.Context, op, failure string, call func(context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mutationTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			s.logger.Warn("update failed", "op", op, "kind", api.Classify(err), "err", err)
			alerts.Emit(s.alerts, alerts.Error, "Notificações", failure)
		}
	}()
}

// HandlePush folds a pushed notification into the list, raises an alert for
// it and then reconciles with a full refresh.
func (s *Sync) HandlePush(ctx context.Context, n models.Notification) {
	metrics.PushEventsTotal.WithLabelValues("notification").Inc()
	if !s.insert(n) {
		metrics.DuplicatesDroppedTotal.WithLabelValues("notifications").Inc()
		return
	}
	alerts.Emit(s.alerts, LevelFor(n), n.Title, n.Message)
	_ = s.Refresh(ctx)
}

// insert prepends n unless an item with the same id is already present.
func (s *Sync) insert(n models.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ID == n.ID {
			return false
		}
	}
	s.items = append([]models.Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
	return true
}

// LevelFor picks the alert level shown for a pushed notification.
func LevelFor(n models.Notification) alerts.Level {
	switch n.Type {
	case models.CategoryOrder:
		if mentionsDelivery(n.Title) || mentionsDelivery(n.Message) {
			return alerts.Success
		}
		return alerts.Info
	case models.CategoryCoupon:
		return alerts.Success
	case models.CategoryStock:
		return alerts.Warning
	case models.CategorySystem:
		return alerts.Info
	}
	return alerts.Info
}

func mentionsDelivery(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "delivered") || strings.Contains(s, "entregue")
}

func (s *Sync) reset() {
	s.mu.Lock()
	s.items = nil
	s.unread = 0
	s.polling = false
	s.gen++
	s.mu.Unlock()
}

func (s *Sync) setPolling(v bool) {
	s.mu.Lock()
	s.polling = v
	s.mu.Unlock()
}
