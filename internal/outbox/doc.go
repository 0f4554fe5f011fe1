// Package outbox drains the durable hand-off queue of finished artifacts
// into a downstream sink.
//
// Delivery is opportunistic: the engine kicks the processor after each
// completed job, and a background timer re-checks entries whose backoff
// window has elapsed. Retry bounds and backoff live in the store; the
// processor only orchestrates passes.
package outbox
