// Package server tracks which usernames are connected and holds the live
// outbound sink per connected username via the Registry type.
package server

import "sync"

// Registry is the presence map for the whole server. It keeps two concurrent
// maps: the set of usernames that called Connect, and the live sink per
// username whose receive stream is open. Both are keyed per username so
// concurrent request handlers never contend on a single lock.
type Registry struct {
	online sync.Map // username -> struct{}
	sinks  sync.Map // username -> Sink
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetOnline marks a username as connected. Idempotent under reconnection.
func (r *Registry) SetOnline(username string) {
	r.online.Store(username, struct{}{})
}

// Register installs the sink for a username, superseding any prior sink
// atomically. The username is also marked online.
func (r *Registry) Register(username string, sink Sink) {
	r.sinks.Store(username, sink)
	r.online.Store(username, struct{}{})
}

// Unregister removes both the presence flag and the sink. No-op if absent.
func (r *Registry) Unregister(username string) {
	r.sinks.Delete(username)
	r.online.Delete(username)
}

// IsOnline reports whether the username is currently connected.
func (r *Registry) IsOnline(username string) bool {
	_, ok := r.online.Load(username)
	return ok
}

// SinkFor returns the live sink for a username, if its stream is open.
func (r *Registry) SinkFor(username string) (Sink, bool) {
	v, ok := r.sinks.Load(username)
	if !ok {
		return nil, false
	}
	return v.(Sink), true
}

// Snapshot returns all currently connected usernames.
func (r *Registry) Snapshot() []string {
	var names []string
	r.online.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// ForEachSink visits every registered sink. The visit runs against a live
// view of the map; entries added or removed concurrently may or may not be
// seen, which is acceptable for best-effort broadcasts.
func (r *Registry) ForEachSink(fn func(username string, sink Sink)) {
	r.sinks.Range(func(key, value any) bool {
		fn(key.(string), value.(Sink))
		return true
	})
}
