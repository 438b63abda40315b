package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"storefront/internal/push"
)

const defaultBrokerChannel = "storefront:push"

type brokerFrame struct {
	Room     string        `json:"room"`
	Envelope push.Envelope `json:"envelope"`
}

// RedisBroker fans push events out through Redis pub/sub so every sandbox
// instance delivers them to its own connections.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	local   Publisher
	logger  *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, channel string, local Publisher, logger *slog.Logger) *RedisBroker {
	if channel == "" {
		channel = defaultBrokerChannel
	}
	return &RedisBroker{
		rdb:     rdb,
		channel: channel,
		local:   local,
		logger:  orDefault(logger).With("component", "broker"),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, room string, env push.Envelope) error {
	data, err := json.Marshal(brokerFrame{Room: room, Envelope: env})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Run relays frames from Redis to the local hub until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(ctx, msg.Payload)
		}
	}
}

func (b *RedisBroker) relay(ctx context.Context, payload string) {
	var f brokerFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		b.logger.Warn("bad frame", "err", err)
		return
	}
	if err := b.local.Publish(ctx, f.Room, f.Envelope); err != nil {
		b.logger.Warn("local publish", "room", f.Room, "err", err)
	}
}
