package activation

import (
	"context"

	"github.com/glimmerbot/glimmer/invalidation"
)

// Bind subscribes the cache to the channel-activation invalidation channel.
func Bind(ctx context.Context, svc *invalidation.ActivationService, c *Cache) error {
	return svc.Subscribe(ctx, func(ev invalidation.Event) {
		switch ev.Type {
		case invalidation.EventAll:
			c.Reset()
		case invalidation.EventChannel:
			c.Invalidate(ev.Field(invalidation.FieldChannelID))
		}
	})
}
