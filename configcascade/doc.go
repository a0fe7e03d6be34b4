// Tiered configuration resolution for the glimmer platform.
//
// The effective configuration for a (user, personality, channel) combination
// is the per-field merge of an ordered stack of partial override tiers:
// hardcoded baseline, platform admin defaults, personality defaults, channel
// overrides, the user's defaults, and the user's per-personality overrides —
// highest tier wins field by field, with provenance recorded per field.
// Results are memoized in a process-local TTL cache; cross-process
// staleness is handled by the invalidation package.
//
// Stored override blobs are validated strictly: a payload carrying any
// unrecognized field is rejected in its entirety and that tier is skipped
// for the resolution.
package configcascade
