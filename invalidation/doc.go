// Cross-process cache invalidation over broker pub/sub.
//
// Every glimmer process holds local in-memory caches derived from the shared
// relational store. When any process changes authoritative data, it publishes
// a small typed event on the matching broker topic; every other process's
// subscriber evicts the affected local cache entries, and the next read
// re-queries the store. Delivery is ordered, at-most-once, best-effort to
// currently connected subscribers — a missed event only means a cache entry
// lives until its TTL instead of being evicted early.
//
// One Channel per cache domain (personas, API keys, channel activation,
// config cascade, LLM config), each with a closed event schema validated
// strictly on receipt: unknown variants, missing or mistyped fields, and any
// extra keys cause the message to be logged and dropped.
package invalidation
