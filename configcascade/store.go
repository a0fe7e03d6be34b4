package configcascade

import (
	"context"
	"encoding/json"
)

// UserOverrideRows is the result of the combined user fetch: the user's
// global default overrides and their per-personality overrides. Either blob
// may be nil when no row exists.
type UserOverrideRows struct {
	Default     json.RawMessage
	Personality json.RawMessage
}

// OverrideStore is the relational-store boundary for tier fetches. Each
// method is a single keyed read returning the stored override blob, or nil
// when no row exists. Blobs are raw: the resolver validates them strictly
// before treating them as a tier.
type OverrideStore interface {
	// AdminOverrides reads the singleton platform-defaults row.
	AdminOverrides(ctx context.Context) (json.RawMessage, error)
	// PersonalityOverrides reads the defaults a personality's author set.
	PersonalityOverrides(ctx context.Context, personalityID string) (json.RawMessage, error)
	// ChannelOverrides reads per-Discord-channel overrides.
	ChannelOverrides(ctx context.Context, channelID string) (json.RawMessage, error)
	// UserOverrides reads the user-default row and the user/personality row
	// in one combined query. personalityID may be empty, in which case only
	// the default row is looked up.
	UserOverrides(ctx context.Context, discordID, personalityID string) (UserOverrideRows, error)
}
