// Package unit contains unit tests for individual components of the Courier
// server.
//
// These tests exercise the routing core against in-memory collaborators: a
// recording Sink and a deterministic Scheduler stand in for live WebSocket
// streams and wall-clock timers, so TTL-driven behavior is asserted without
// real waits.
package unit

import (
	"errors"
	"sync"
	"time"

	"github.com/courier-im/courier/internal/server"
)

var errPushRefused = errors.New("push refused")

// fakeSink records every pushed message; when failing is set, it refuses
// pushes and counts the attempts instead.
type fakeSink struct {
	mu       sync.Mutex
	msgs     []server.Message
	failing  bool
	attempts int
}

func (f *fakeSink) Push(msg server.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.failing {
		return errPushRefused
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSink) messages() []server.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]server.Message(nil), f.msgs...)
}

func (f *fakeSink) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type scheduledTask struct {
	delay time.Duration
	run   func()
}

// fakeScheduler captures scheduled tasks so tests fire them explicitly.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

func (f *fakeScheduler) After(d time.Duration, task func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, scheduledTask{delay: d, run: task})
}

func (f *fakeScheduler) pending() []scheduledTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledTask(nil), f.tasks...)
}

// fireAll runs every captured task once and clears the queue.
func (f *fakeScheduler) fireAll() {
	f.mu.Lock()
	tasks := f.tasks
	f.tasks = nil
	f.mu.Unlock()

	for _, task := range tasks {
		task.run()
	}
}
