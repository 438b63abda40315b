package services

import (
	"context"
	"log/slog"

	"storefront/internal/push"
)

// Publisher delivers a push event to every connection in a room.
type Publisher interface {
	Publish(ctx context.Context, room string, env push.Envelope) error
}

type PublisherFunc func(ctx context.Context, room string, env push.Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, room string, env push.Envelope) error {
	return f(ctx, room, env)
}

var discardPublisher = PublisherFunc(func(context.Context, string, push.Envelope) error { return nil })

// emit builds and publishes an event; failures only get logged since the
// REST response has already been decided.
func emit(ctx context.Context, pub Publisher, logger *slog.Logger, room, eventType string, payload interface{}) {
	env, err := push.NewEvent(eventType, payload)
	if err != nil {
		logger.Error("encode push event", "type", eventType, "err", err)
		return
	}
	if err := pub.Publish(ctx, room, env); err != nil {
		logger.Warn("publish push event", "type", eventType, "room", room, "err", err)
	}
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
