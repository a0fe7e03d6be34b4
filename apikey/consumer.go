package apikey

import (
	"context"

	"github.com/glimmerbot/glimmer/invalidation"
)

// Bind subscribes the checker to the api-key invalidation channel.
func Bind(ctx context.Context, svc *invalidation.APIKeyService, c *Checker) error {
	return svc.Subscribe(ctx, func(ev invalidation.Event) {
		switch ev.Type {
		case invalidation.EventAll:
			c.Reset()
		case invalidation.EventUser:
			c.InvalidateUser(ev.Field(invalidation.FieldDiscordID))
		}
	})
}
