// Package bus provides asynchronous message passing between agents and the
// engine:
//
//   - Bus: a buffered publish queue drained by a single consumer goroutine
//     that fans each message out to the handlers subscribed under the
//     recipient's name, with a bounded history and delivery counters
//   - Router: declarative recipient rewriting in front of a Bus
//
// Delivery is at-most-once and in publish order. When the queue is full the
// bus drops the message and counts it as failed rather than blocking the
// publisher; handlers that error or panic are counted the same way without
// affecting other subscribers.
package bus
