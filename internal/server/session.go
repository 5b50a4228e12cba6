// Package server orchestrates the connect/disconnect lifecycle: presence,
// join broadcasts, and the offline-message flush on reconnect.
package server

import "github.com/sirupsen/logrus"

// SessionController drives the per-username Disconnected -> Connected ->
// Disconnected state machine. Presence and channel subscriptions are
// independent lifecycles: disconnecting never touches channel subscriber
// sets, which are cleaned up by their own stream teardown.
type SessionController struct {
	registry *Registry
	router   *Router
}

// NewSessionController wires the controller against the presence registry
// and the direct-message router (for the reconnect drain).
func NewSessionController(registry *Registry, router *Router) *SessionController {
	return &SessionController{
		registry: registry,
		router:   router,
	}
}

// Connect marks the username online, broadcasts a join event to every other
// registered stream, and returns the usernames that were already connected.
func (c *SessionController) Connect(username string) []string {
	others := make([]string, 0)
	for _, name := range c.registry.Snapshot() {
		if name != username {
			others = append(others, name)
		}
	}

	c.registry.SetOnline(username)

	event := joinedEvent(username)
	c.registry.ForEachSink(func(name string, sink Sink) {
		if name == username {
			return
		}
		if err := sink.Push(event); err != nil {
			logrus.WithFields(logrus.Fields{
				"joined":   username,
				"username": name,
			}).Debug("Join event dropped")
		}
	})

	logrus.WithField("username", username).Info("User connected")
	return others
}

// Attach installs the receive-stream sink for username, superseding any
// prior sink, then replays stored messages through it. Called when the
// ReceiveMessages stream opens.
func (c *SessionController) Attach(username string, sink Sink) {
	c.registry.Register(username, sink)
	c.router.Drain(username, sink)
}

// Disconnect removes the username's presence and sink registration. Channel
// subscriber entries are left alone until their streams are cancelled.
func (c *SessionController) Disconnect(username string) {
	c.registry.Unregister(username)
	logrus.WithField("username", username).Info("User disconnected")
}
