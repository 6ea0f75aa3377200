// Package broadcast fans project update events out to live subscribers.
//
// Each subscriber holds a bounded queue. Publishing never blocks: when a
// queue is full the subscriber's own oldest pending event is dropped, so
// a slow consumer only loses its own events and cannot delay anyone else.
// Subscribers can filter to one project or receive everything.
package broadcast
