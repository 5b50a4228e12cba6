// Package server runs time-delayed deletion tasks on a bounded worker pool so
// scheduling volume never blocks request-handling goroutines.
package server

import (
	"sync"
	"time"
)

// Scheduler enqueues a one-shot task to run after a delay. Tests substitute a
// deterministic implementation to drive TTL behavior without wall-clock waits.
type Scheduler interface {
	After(d time.Duration, task func())
}

// TimerScheduler is the production Scheduler. Due tasks are handed to a fixed
// pool of workers; the pool size is the operator-facing tuning knob. Tasks are
// fire-and-forget: once the scheduler is stopped, due tasks are discarded.
type TimerScheduler struct {
	tasks    chan func()
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewTimerScheduler starts a scheduler with the given number of workers.
// Worker counts below 1 are clamped to 1.
func NewTimerScheduler(workers int) *TimerScheduler {
	if workers < 1 {
		workers = 1
	}

	s := &TimerScheduler{
		tasks: make(chan func(), 256),
		quit:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.work()
	}

	return s
}

// After schedules task to run once the delay elapses. There is no
// cancellation: a task may fire against a sink that has since disconnected,
// in which case the push inside it simply fails and is discarded.
func (s *TimerScheduler) After(d time.Duration, task func()) {
	time.AfterFunc(d, func() {
		select {
		case s.tasks <- task:
		case <-s.quit:
		}
	})
}

func (s *TimerScheduler) work() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.quit:
			return
		}
	}
}

// Stop shuts the worker pool down and waits for in-flight tasks to finish.
// Tasks still pending in timers are dropped. Safe to call more than once.
func (s *TimerScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
}
