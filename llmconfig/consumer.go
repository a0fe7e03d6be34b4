package llmconfig

import (
	"context"

	"github.com/glimmerbot/glimmer/invalidation"
)

// Bind subscribes the resolver to the llm-config invalidation channel.
func Bind(ctx context.Context, svc *invalidation.LLMConfigService, r *Resolver) error {
	return svc.Subscribe(ctx, func(ev invalidation.Event) {
		switch ev.Type {
		case invalidation.EventAll:
			r.ClearCache()
		case invalidation.EventUser:
			r.InvalidateUser(ev.Field(invalidation.FieldDiscordID))
		case invalidation.EventConfig:
			r.InvalidateConfig(ev.Field(invalidation.FieldConfigID))
		}
	})
}
