package persona

import (
	"context"

	"github.com/glimmerbot/glimmer/invalidation"
)

// Bind subscribes the cached directory to the persona invalidation channel.
// A "user" event evicts the user's listing; names owned by that user are
// unknown here, so their entries ride out the TTL.
func Bind(ctx context.Context, svc *invalidation.PersonaService, d *CachedDirectory) error {
	return svc.Subscribe(ctx, func(ev invalidation.Event) {
		switch ev.Type {
		case invalidation.EventAll:
			d.PurgeAll()
		case invalidation.EventUser:
			_ = d.PurgeUser(context.Background(), ev.Field(invalidation.FieldDiscordID))
		}
	})
}
