// Package server implements channel broadcast: creation, subscriber sets,
// fan-out, and per-channel message counters.
package server

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/courier-im/courier/internal/store"
)

const channelKeyPrefix = "channel:"

// Channel is a named broadcast topic. Metadata is guarded by the channel's
// own mutex together with the subscriber set, so channels never contend with
// each other; the message counter is atomic so publishes never serialize on
// the metadata lock.
type Channel struct {
	id string

	mu      sync.RWMutex
	name    string
	creator string
	tags    []string
	subs    map[Sink]struct{}

	count atomic.Int64
}

func newChannel(id string) *Channel {
	return &Channel{
		id:   id,
		subs: make(map[Sink]struct{}),
	}
}

// snapshotSubs copies the subscriber set so fan-out iterates without holding
// the lock and eviction of failed sinks happens after the pass.
func (c *Channel) snapshotSubs() []Sink {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]Sink, 0, len(c.subs))
	for sink := range c.subs {
		subs = append(subs, sink)
	}
	return subs
}

// ChannelEngine owns every channel for the process lifetime. There is no
// channel deletion; creating a channel under an existing id overwrites its
// metadata (last writer wins) while the subscriber set and counter survive.
type ChannelEngine struct {
	registry *Registry
	store    store.Store
	channels sync.Map // channel id -> *Channel
}

// NewChannelEngine wires the engine against the presence registry (for
// creation announcements) and the store (for channel durability), loading
// any channels persisted by a previous run.
func NewChannelEngine(registry *Registry, st store.Store) *ChannelEngine {
	e := &ChannelEngine{
		registry: registry,
		store:    st,
	}
	e.rehydrate()
	return e
}

// rehydrate restores persisted channel metadata so channels created before a
// restart keep their name, creator, and tags. Subscriber sets and message
// counters are in-process state and start empty.
func (e *ChannelEngine) rehydrate() {
	stored, err := e.store.GetAllWithPrefix(channelKeyPrefix)
	if err != nil {
		logrus.WithError(err).Error("Failed to load persisted channels")
		return
	}

	for key, fields := range stored {
		id := strings.TrimPrefix(key, channelKeyPrefix)
		ch := e.channel(id)
		ch.mu.Lock()
		ch.name = fields["name"]
		ch.creator = fields["creator"]
		if tags := fields["tags"]; tags != "" {
			ch.tags = strings.Split(tags, ",")
		}
		ch.mu.Unlock()
	}

	if len(stored) > 0 {
		logrus.WithField("count", len(stored)).Info("Restored persisted channels")
	}
}

// channel returns the live channel for id, creating an empty one if needed.
// Subscribing before the explicit create call must work: under load a
// subscriber often races the creator.
func (e *ChannelEngine) channel(id string) *Channel {
	if v, ok := e.channels.Load(id); ok {
		return v.(*Channel)
	}
	v, _ := e.channels.LoadOrStore(id, newChannel(id))
	return v.(*Channel)
}

// Create registers a channel, persists its metadata, and announces it to
// every currently connected user so clients can self-register interest.
// Returns the channel id.
func (e *ChannelEngine) Create(creator, name string, tags []string) string {
	id := ChannelID(name)

	ch := e.channel(id)
	ch.mu.Lock()
	ch.name = name
	ch.creator = creator
	ch.tags = append([]string(nil), tags...)
	ch.mu.Unlock()

	fields := map[string]string{
		"creator": creator,
		"name":    name,
		"tags":    strings.Join(tags, ","),
	}
	if err := e.store.Put(channelKeyPrefix+id, fields, 0); err != nil {
		logrus.WithField("channel", id).WithError(err).Error("Failed to persist channel metadata")
	}

	announcement := channelAnnouncement(id, name, creator, tags)
	e.registry.ForEachSink(func(username string, sink Sink) {
		if err := sink.Push(announcement); err != nil {
			logrus.WithFields(logrus.Fields{
				"channel":  id,
				"username": username,
			}).Debug("Channel announcement dropped")
		}
	})

	logrus.WithFields(logrus.Fields{
		"channel": id,
		"creator": creator,
	}).Info("Channel created")
	return id
}

// Subscribe adds sink to the channel's subscriber set. Duplicate calls are
// harmless. The caller must arrange for Unsubscribe to run when the
// underlying stream is torn down, or the set leaks dead sinks.
func (e *ChannelEngine) Subscribe(id string, sink Sink) {
	ch := e.channel(id)
	ch.mu.Lock()
	ch.subs[sink] = struct{}{}
	ch.mu.Unlock()
}

// Unsubscribe removes sink from the channel's subscriber set. This is the
// stream-cancellation hook; it is a no-op for unknown channels or sinks.
func (e *ChannelEngine) Unsubscribe(id string, sink Sink) {
	v, ok := e.channels.Load(id)
	if !ok {
		return
	}
	ch := v.(*Channel)
	ch.mu.Lock()
	delete(ch.subs, sink)
	ch.mu.Unlock()
}

// Publish increments the channel's counter and fans the message out to every
// current subscriber, including the sender's own subscription. Subscribers
// whose push fails are evicted after the fan-out pass completes.
func (e *ChannelEngine) Publish(id, from, content string) string {
	ch := e.channel(id)
	ch.count.Add(1)

	payload := Message{From: from, To: id, Content: content}

	var failed []Sink
	for _, sink := range ch.snapshotSubs() {
		if err := sink.Push(payload); err != nil {
			failed = append(failed, sink)
		}
	}

	if len(failed) > 0 {
		ch.mu.Lock()
		for _, sink := range failed {
			delete(ch.subs, sink)
		}
		ch.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"channel": id,
			"evicted": len(failed),
		}).Warn("Removed subscribers after failed pushes")
	}

	return StatusDelivered
}

// Stats returns the channel's total message count, or 0 for an unknown
// channel.
func (e *ChannelEngine) Stats(id string) int64 {
	v, ok := e.channels.Load(id)
	if !ok {
		return 0
	}
	return v.(*Channel).count.Load()
}
