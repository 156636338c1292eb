// Package bus implements the event bus at the center of cogmesh.
//
// The bus is the sole channel through which subsystems communicate. It
// provides:
//   - Durable publish: every event is persisted to the bus's EventStore
//     before the transport acknowledges it
//   - Channel-addressed subscriptions with isolated callback execution
//   - Bounded, insertion-ordered event history per type and globally
//   - Correlation groups with non-decreasing creation timestamps
//   - An optional pull-style priority index for consumers that want to
//     drain urgent events first
//
// Delivery order is unspecified across correlation groups. Within one
// correlation group, event creation timestamps never decrease, so history
// reads are causally ordered.
package bus
