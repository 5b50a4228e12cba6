// Package server models the outbound side of a connected stream as a Sink so
// the routing core never depends on a concrete transport type.
package server

// Sink is the push capability for one connected client stream. Push must not
// block: a saturated or closed stream returns an error immediately and the
// caller treats it as a delivery failure, never a fatal condition.
type Sink interface {
	Push(msg Message) error
}
