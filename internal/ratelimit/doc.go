// Package ratelimit implements the fixed-window limiter that guards the
// contact form.
//
// Each identifier (normally the client IP) gets a record {count, expiry}.
// A call after expiry starts a fresh window. A call while count has reached
// the limit is denied and leaves the record alone, so denial holds until the
// window rolls over and the next window starts counting from zero.
//
// Two backends share the semantics:
//   - Window keeps records in a bounded LRU with a TTL. It is per-process and
//     what a single instance should use.
//   - RedisWindow runs the same check-and-increment atomically in Redis so
//     several instances share one budget per identifier.
//
// What this does NOT protect against:
//   - distributed floods across many addresses
//   - bandwidth-bill attacks, the request body is already read by the time this runs
//
// Clients whose address cannot be resolved are all counted under
// FallbackIdentifier and share a single budget.
package ratelimit
