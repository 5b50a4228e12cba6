// Package server routes point-to-point messages: live delivery to an online
// recipient's sink, store-and-forward for offline recipients, and the
// self-destruct lifecycle for secret messages.
package server

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/courier-im/courier/internal/store"
)

const offlineKeyPrefix = "offline:"

// Router delivers direct messages. Online delivery is best-effort: a failed
// push to a live sink is logged and dropped, never retried or re-queued.
type Router struct {
	registry  *Registry
	store     store.Store
	scheduler Scheduler
	ttl       time.Duration

	drains sync.Map // username -> *sync.Mutex
}

// NewRouter wires the router against its collaborators. ttl is the secret
// message expiry window, used both for stored-copy expiry and for deletion
// task scheduling.
func NewRouter(registry *Registry, st store.Store, scheduler Scheduler, ttl time.Duration) *Router {
	return &Router{
		registry:  registry,
		store:     st,
		scheduler: scheduler,
		ttl:       ttl,
	}
}

// Send delivers a direct message and always acknowledges with
// StatusDelivered: the sender cannot distinguish online delivery from
// offline queueing, and push failures are swallowed.
func (r *Router) Send(from, to, content string, secret bool) string {
	payload := Message{From: from, To: to, Content: content, Secret: secret}

	if sink, ok := r.registry.SinkFor(to); ok {
		if err := sink.Push(payload); err != nil {
			logrus.WithFields(logrus.Fields{
				"from": from,
				"to":   to,
			}).WithError(err).Warn("Dropping direct message after failed push")
		} else if secret {
			r.scheduleDeletion(sink, payload)
		}
	} else {
		r.storeOffline(payload)
	}

	// A secret message is echoed to the sender's own stream so their client
	// can render and later retract it, independent of the recipient path.
	if secret {
		if sink, ok := r.registry.SinkFor(from); ok {
			if err := sink.Push(payload); err != nil {
				logrus.WithField("from", from).WithError(err).Warn("Dropping secret echo after failed push")
			} else {
				r.scheduleDeletion(sink, payload)
			}
		}
	}

	return StatusDelivered
}

// Drain replays every stored message for username through sink in stored-key
// order, deleting each copy immediately after its replay attempt. Replayed
// secret messages get a fresh deletion task timed from the replay moment.
func (r *Router) Drain(username string, sink Sink) {
	// Drains for the same username are serialized: two simultaneous
	// reconnects must not both read the queue before either deletes, or the
	// stored messages replay twice.
	lock := r.drainLock(username)
	lock.Lock()
	defer lock.Unlock()

	prefix := offlineKeyPrefix + username + ":"
	stored, err := r.store.GetAllWithPrefix(prefix)
	if err != nil {
		logrus.WithField("username", username).WithError(err).Error("Failed to read offline messages")
		return
	}
	if len(stored) == 0 {
		return
	}

	// ULID keys sort by creation time, so replay preserves send order.
	keys := make([]string, 0, len(stored))
	for key := range stored {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fields := stored[key]
		secret, _ := strconv.ParseBool(fields["secret"])
		payload := Message{
			From:    fields["from"],
			To:      username,
			Content: fields["content"],
			Secret:  secret,
		}

		pushErr := sink.Push(payload)
		if pushErr != nil {
			logrus.WithFields(logrus.Fields{
				"username": username,
				"key":      key,
			}).WithError(pushErr).Warn("Dropping stored message after failed replay push")
		}
		if err := r.store.Delete(key); err != nil {
			logrus.WithField("key", key).WithError(err).Warn("Failed to delete replayed message")
		}
		if secret && pushErr == nil {
			r.scheduleDeletion(sink, payload)
		}
	}

	logrus.WithFields(logrus.Fields{
		"username": username,
		"count":    len(keys),
	}).Info("Replayed offline messages")
}

func (r *Router) drainLock(username string) *sync.Mutex {
	v, _ := r.drains.LoadOrStore(username, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// scheduleDeletion registers the one-shot retraction push for a secret
// message that reached sink. A task firing after the sink is gone is a no-op.
func (r *Router) scheduleDeletion(sink Sink, payload Message) {
	signal := payload.deleteSignal()
	r.scheduler.After(r.ttl, func() {
		if err := sink.Push(signal); err != nil {
			logrus.WithFields(logrus.Fields{
				"from": signal.From,
				"to":   signal.To,
			}).Debug("Delete signal dropped, target stream gone")
		}
	})
}

// storeOffline persists a message for an offline recipient. Only secret
// messages carry a TTL; ordinary messages wait indefinitely.
func (r *Router) storeOffline(payload Message) {
	key := offlineKeyPrefix + payload.To + ":" + ulid.Make().String()
	fields := map[string]string{
		"from":    payload.From,
		"content": payload.Content,
		"secret":  strconv.FormatBool(payload.Secret),
	}

	var ttl time.Duration
	if payload.Secret {
		ttl = r.ttl
	}

	if err := r.store.Put(key, fields, ttl); err != nil {
		logrus.WithFields(logrus.Fields{
			"from": payload.From,
			"to":   payload.To,
		}).WithError(err).Error("Failed to store offline message")
		return
	}

	logrus.WithFields(logrus.Fields{
		"to":     payload.To,
		"secret": payload.Secret,
	}).Debug("Message stored for offline recipient")
}
