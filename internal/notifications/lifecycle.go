package notifications

import (
	"context"
	"errors"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/session"
)

// Bind runs the sync for whoever is signed in to store. The push channel
// (or the fallback poll) is started on login and torn down on logout or
// when the user changes. The returned function stops everything.
func (s *Sync) Bind(ctx context.Context, store *session.Store) func() {
	unwatch := store.Watch(func(id session.Identity) {
		s.stopRun()
		s.reset()
		if id.Authenticated() {
			s.startRun(ctx, id.UserID)
		}
	})
	return func() {
		unwatch()
		s.stopRun()
	}
}

func (s *Sync) startRun(parent context.Context, userID int64) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	s.runMu.Lock()
	s.runCancel = cancel
	s.runDone = done
	s.runMu.Unlock()

	go func() {
		defer close(done)
		s.Run(ctx, userID)
	}()
}

func (s *Sync) stopRun() {
	s.runMu.Lock()
	cancel, done := s.runCancel, s.runDone
	s.runCancel, s.runDone = nil, nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Run loads the list and keeps it current for userID until ctx is done.
// Push is preferred; once the channel cannot be (re)established the list is
// refreshed every fallback interval with no backoff and no retry limit.
func (s *Sync) Run(ctx context.Context, userID int64) {
	logger := s.logger.With("op", "notifications.run", "user_id", userID)
	_ = s.Refresh(ctx)

	if s.newCh != nil {
		err := s.runPush(ctx, userID)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("push channel failed, polling instead", "err", err, "interval", s.fallback)
	}
	metrics.PushFallbackTotal.Inc()
	s.poll(ctx)
}

func (s *Sync) runPush(ctx context.Context, userID int64) error {
	ch := s.newCh()
	ch.OnNotification(func(n models.Notification) {
		s.HandlePush(ctx, n)
	})
	if err := ch.Connect(ctx); err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.SubscribeUser(userID); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.Done():
		if err := ch.Err(); err != nil {
			return err
		}
		return errors.New("push channel closed")
	}
}

func (s *Sync) poll(ctx context.Context) {
	s.setPolling(true)
	defer s.setPolling(false)

	t := time.NewTicker(s.fallback)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.Refresh(ctx)
		}
	}
}
