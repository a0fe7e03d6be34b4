package configcascade

import (
	"context"

	"github.com/glimmerbot/glimmer/invalidation"
)

// Bind subscribes the resolver to the cascade invalidation channel, so an
// event published by any process evicts the matching local cache entries.
// Admin-tier changes affect every cached key, so "admin" clears like "all".
func Bind(ctx context.Context, svc *invalidation.CascadeService, r *Resolver) error {
	return svc.Subscribe(ctx, func(ev invalidation.Event) {
		switch ev.Type {
		case invalidation.EventAll, invalidation.EventAdmin:
			r.ClearCache()
		case invalidation.EventUser:
			r.InvalidateUser(ev.Field(invalidation.FieldDiscordID))
		case invalidation.EventPersonality:
			r.InvalidatePersonality(ev.Field(invalidation.FieldPersonalityID))
		case invalidation.EventChannel:
			r.InvalidateChannel(ev.Field(invalidation.FieldChannelID))
		}
	})
}
