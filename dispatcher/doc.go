// Package dispatcher routes typed tasks to subsystem handlers. Tasks arrive
// either synchronously through Dispatch or asynchronously as task.new events
// consumed by Run through a bounded queue with a configurable overflow
// policy. Every dispatch outcome is published back to the bus as
// task.complete or task.error.
package dispatcher
