// Package server defines the wire message format shared by the direct and
// channel delivery paths, along with helpers for server-originated events.
package server

import "strings"

// StatusDelivered is the acknowledgment returned for every accepted send.
// The router never reports delivery failure to the sender; an offline-queued
// message and an online-delivered one look the same from the caller's side.
const StatusDelivered = "Delivered"

// channelIDPrefix marks channel identifiers on the wire. Channel announcements
// carry the full id in their To field so clients can self-register interest.
const channelIDPrefix = "CHANNEL:"

// Message is the JSON payload pushed on every receive stream. User-authored
// messages have System=false; presence joins and channel announcements set
// System=true.
type Message struct {
	From    string   `json:"from"`
	To      string   `json:"to,omitempty"`
	Content string   `json:"content"`
	Secret  bool     `json:"secret"`
	Delete  bool     `json:"delete"`
	System  bool     `json:"system"`
	Tags    []string `json:"tags,omitempty"`
}

// ChannelID derives the wire identifier for a channel name.
func ChannelID(name string) string {
	return channelIDPrefix + name
}

// IsChannelID reports whether id carries the channel marker.
func IsChannelID(id string) bool {
	return strings.HasPrefix(id, channelIDPrefix)
}

// deleteSignal returns the retraction payload for a previously delivered
// secret message: same from/to/content with the delete flag raised.
func (m Message) deleteSignal() Message {
	m.Secret = true
	m.Delete = true
	return m
}

// joinedEvent is the system notification broadcast when a user connects.
func joinedEvent(username string) Message {
	return Message{From: username, Content: "joined", System: true}
}

// channelAnnouncement is the system notification broadcast to every connected
// user when a channel is created.
func channelAnnouncement(id, name, creator string, tags []string) Message {
	return Message{From: creator, To: id, Content: name, Tags: tags, System: true}
}
