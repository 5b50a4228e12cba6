package unit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/courier-im/courier/internal/server"
)

// TestTimerSchedulerRunsTask verifies a scheduled task fires after its delay.
func TestTimerSchedulerRunsTask(t *testing.T) {
	sched := server.NewTimerScheduler(2)
	defer sched.Stop()

	fired := make(chan struct{})
	sched.After(10*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduled task never fired")
	}
}

// TestTimerSchedulerRunsTasksConcurrently verifies multiple due tasks do not
// serialize behind one slow task when more than one worker is configured.
func TestTimerSchedulerRunsTasksConcurrently(t *testing.T) {
	sched := server.NewTimerScheduler(4)
	defer sched.Stop()

	var count atomic.Int32
	done := make(chan struct{})

	const tasks = 8
	for i := 0; i < tasks; i++ {
		sched.After(5*time.Millisecond, func() {
			if count.Add(1) == tasks {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Only %d of %d tasks fired", count.Load(), tasks)
	}
}

// TestTimerSchedulerStopDropsPendingTasks verifies tasks due after Stop are
// discarded instead of firing late.
func TestTimerSchedulerStopDropsPendingTasks(t *testing.T) {
	sched := server.NewTimerScheduler(1)

	var fired atomic.Bool
	sched.After(50*time.Millisecond, func() {
		fired.Store(true)
	})

	sched.Stop()
	time.Sleep(100 * time.Millisecond)

	if fired.Load() {
		t.Error("Task fired after the scheduler was stopped")
	}

	// Stop must be safe to call repeatedly.
	sched.Stop()
}

// TestTimerSchedulerClampsWorkerCount verifies a non-positive pool size
// still yields a working scheduler.
func TestTimerSchedulerClampsWorkerCount(t *testing.T) {
	sched := server.NewTimerScheduler(0)
	defer sched.Stop()

	fired := make(chan struct{})
	sched.After(time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduler with clamped worker count never ran its task")
	}
}
