package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Callback receives every valid event delivered on a channel.
type Callback func(Event)

// Channel wraps one broker pub/sub topic carrying invalidation events for a
// single cache domain.
//
// Publishing uses the shared client. Receiving uses a dedicated subscriber
// connection (go-redis puts each PubSub on its own connection), created
// lazily on the first Subscribe and torn down by Unsubscribe. Delivery is
// best-effort: messages published while no subscriber connection exists are
// lost, which is fine — caches self-heal on the next TTL expiry.
type Channel struct {
	client *redis.Client
	topic  string
	schema Schema
	logger *slog.Logger

	mu        sync.Mutex
	callbacks []Callback
	sub       *redis.PubSub
}

func NewChannel(client *redis.Client, topic string, schema Schema, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		client: client,
		topic:  topic,
		schema: schema,
		logger: logger.With("topic", topic),
	}
}

// Topic returns the broker topic name this channel is bound to.
func (c *Channel) Topic() string {
	return c.topic
}

// Subscribe registers cb for every valid event received on the topic,
// creating the dedicated subscriber connection if this is the first call.
// Repeat calls reuse the existing connection; there is at most one physical
// subscriber connection per channel no matter how often Subscribe is called.
// If connection setup fails, nothing is leaked and the error is returned.
func (c *Channel) Subscribe(ctx context.Context, cb Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		c.callbacks = append(c.callbacks, cb)
		return nil
	}

	sub := c.client.Subscribe(ctx, c.topic)
	// Receive blocks until the server confirms the subscription, surfacing
	// connection errors here instead of silently in the read loop.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribing to %s: %w", c.topic, err)
	}
	c.sub = sub
	c.callbacks = append(c.callbacks, cb)
	go c.readLoop(sub)
	return nil
}

// Unsubscribe tears down the subscriber connection and clears all registered
// callbacks. Idempotent; a no-op if Subscribe was never called.
func (c *Channel) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.sub = nil
	c.callbacks = nil
	if err != nil {
		return fmt.Errorf("closing subscriber for %s: %w", c.topic, err)
	}
	return nil
}

// Publish validates, serializes, and publishes ev on the topic. Errors
// propagate: the caller must know when an invalidation did not go out.
func (c *Channel) Publish(ctx context.Context, ev Event) error {
	if _, ok := c.schema[ev.Type]; !ok {
		return fmt.Errorf("unknown event type %q for topic %s", ev.Type, c.topic)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	if err := c.client.Publish(ctx, c.topic, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.topic, err)
	}
	eventsPublished.WithLabelValues(c.topic).Inc()
	return nil
}

func (c *Channel) readLoop(sub *redis.PubSub) {
	for msg := range sub.Channel() {
		// defends against connection reuse delivering a foreign topic
		if msg.Channel != c.topic {
			continue
		}
		ev, ok := c.schema.Validate([]byte(msg.Payload))
		if !ok {
			eventsDropped.WithLabelValues(c.topic).Inc()
			c.logger.Warn("dropping invalid invalidation event", "payload", msg.Payload)
			continue
		}
		eventsReceived.WithLabelValues(c.topic).Inc()

		c.mu.Lock()
		cbs := make([]Callback, len(c.callbacks))
		copy(cbs, c.callbacks)
		c.mu.Unlock()

		for _, cb := range cbs {
			c.dispatch(cb, ev)
		}
	}
}

// dispatch invokes one callback, isolating a panic in it from the other
// callbacks and from the read loop.
func (c *Channel) dispatch(cb Callback, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			callbackErrors.WithLabelValues(c.topic).Inc()
			c.logger.Error("invalidation callback panicked", "type", ev.Type, "panic", r)
		}
	}()
	cb(ev)
}
