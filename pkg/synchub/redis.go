package synchub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBridge relays hub events across processes through a Redis pub/sub
// channel. Each bridge tags outgoing events with its origin id and ignores
// its own publications coming back, so every process sees each event once.
type RedisBridge struct {
	hub     *Hub
	client  redis.UniversalClient
	channel string
	origin  string
	log     *slog.Logger
}

// BridgeOption configures a RedisBridge.
type BridgeOption func(*RedisBridge)

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(log *slog.Logger) BridgeOption {
	return func(b *RedisBridge) {
		if log != nil {
			b.log = log
		}
	}
}

// NewRedisBridge wires a hub to a Redis channel. Run starts the relay.
func NewRedisBridge(hub *Hub, client redis.UniversalClient, channel string, opts ...BridgeOption) *RedisBridge {
	b := &RedisBridge{
		hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run relays in both directions until ctx is cancelled or the hub closes.
// Local events go out to Redis, remote events come into the local hub.
// Heartbeats stay process-local.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub, err := b.hub.Subscribe(ctx, WithoutSnapshot())
	if err != nil {
		return err
	}
	defer sub.Close()

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription to be live so local publishes racing the
	// startup are not silently missed on the remote side.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	remote := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Type == EventHeartbeat || ev.Type == EventSyncComplete {
				continue
			}
			if ev.Origin != "" && ev.Origin != b.origin {
				// Came in over the bridge already.
				continue
			}
			ev.Origin = b.origin
			raw, err := json.Marshal(ev)
			if err != nil {
				b.log.ErrorContext(ctx, "failed to encode sync event", "type", ev.Type, "error", err)
				continue
			}
			if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
				b.log.ErrorContext(ctx, "failed to relay sync event", "type", ev.Type, "error", err)
			}

		case msg, ok := <-remote:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.ErrorContext(ctx, "failed to decode sync event", "error", err)
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			b.hub.Publish(ev)
		}
	}
}
