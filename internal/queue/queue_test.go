package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestQueue_ProcessesJob(t *testing.T) {
	var got atomic.Int32
	q := New("test", Policy{Attempts: 3, Backoff: time.Millisecond, Workers: 2}, func(ctx context.Context, payload []byte) error {
		got.Add(1)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	if ok, err := q.Enqueue("job-1", map[string]string{"id": "1"}); err != nil || !ok {
		t.Fatalf("Enqueue: ok=%v err=%v", ok, err)
	}
	waitFor(t, time.Second, func() bool { return got.Load() == 1 })
	waitFor(t, time.Second, func() bool { return q.Stats().Completed == 1 })
}

func TestQueue_RetriesWithBackoffThenFails(t *testing.T) {
	var attempts atomic.Int32
	q := New("test", Policy{Attempts: 3, Backoff: time.Millisecond, Workers: 1, KeepFailed: 10},
		func(ctx context.Context, payload []byte) error {
			attempts.Add(1)
			return errors.New("boom")
		})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue("job-1", nil)
	waitFor(t, 2*time.Second, func() bool { return q.Stats().Failed == 1 })
	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	failed := q.FailedJobs()
	if len(failed) != 1 || failed[0].LastError != "boom" || failed[0].Attempts != 3 {
		t.Errorf("failed job = %+v", failed[0])
	}
}

func TestQueue_SucceedsAfterRetry(t *testing.T) {
	var attempts atomic.Int32
	q := New("test", Policy{Attempts: 5, Backoff: time.Millisecond, Workers: 1},
		func(ctx context.Context, payload []byte) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue("job-1", nil)
	waitFor(t, 2*time.Second, func() bool { return q.Stats().Completed == 1 })
	if q.Stats().Failed != 0 {
		t.Error("job should not be in the failed set after eventual success")
	}
}

func TestQueue_DuplicateKeyIgnoredWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	q := New("test", Policy{Attempts: 1, Workers: 1}, func(ctx context.Context, payload []byte) error {
		runs.Add(1)
		<-release
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	if ok, _ := q.Enqueue("doc-42", nil); !ok {
		t.Fatal("first enqueue rejected")
	}
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })
	if ok, _ := q.Enqueue("doc-42", nil); ok {
		t.Error("duplicate key should be ignored while the first job is running")
	}
	close(release)
	waitFor(t, time.Second, func() bool { return q.Stats().Completed == 1 })

	// After completion the key is free again.
	if ok, _ := q.Enqueue("doc-42", nil); !ok {
		t.Error("re-submission after completion should be accepted")
	}
}

func TestQueue_CompletedRetentionCap(t *testing.T) {
	q := New("test", Policy{Attempts: 1, Workers: 4, KeepCompleted: 5},
		func(ctx context.Context, payload []byte) error { return nil })
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 20; i++ {
		q.Enqueue(string(rune('a'+i)), nil)
	}
	waitFor(t, 2*time.Second, func() bool { return q.Depth() == 0 })
	if n := q.Stats().Completed; n > 5 {
		t.Errorf("completed retained = %d, want at most 5", n)
	}
}

func TestQueue_CompletedMaxAge(t *testing.T) {
	jobs := []*Job{
		{Key: "old", FinishedAt: time.Now().Add(-48 * time.Hour)},
		{Key: "fresh", FinishedAt: time.Now()},
	}
	out := trimRetention(jobs, 100, 24*time.Hour)
	if len(out) != 1 || out[0].Key != "fresh" {
		t.Errorf("trimRetention kept %d jobs, want only the fresh one", len(out))
	}
}

func TestQueue_FailedRetentionCap(t *testing.T) {
	q := New("test", Policy{Attempts: 1, Workers: 4, KeepFailed: 3},
		func(ctx context.Context, payload []byte) error { return errors.New("nope") })
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 10; i++ {
		q.Enqueue(string(rune('a'+i)), nil)
	}
	waitFor(t, 2*time.Second, func() bool { return q.Depth() == 0 })
	if n := q.Stats().Failed; n > 3 {
		t.Errorf("failed retained = %d, want at most 3", n)
	}
}

func TestQueue_YieldToBackloggedQueue(t *testing.T) {
	bulkRelease := make(chan struct{})
	bulk := New("bulk", Policy{Attempts: 1, Workers: 1}, func(ctx context.Context, payload []byte) error {
		<-bulkRelease
		return nil
	})
	var mu sync.Mutex
	var order []string
	low := New("low", Policy{Attempts: 1, Workers: 1}, func(ctx context.Context, payload []byte) error {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		return nil
	}, WithYieldTo(bulk))

	ctx := context.Background()
	bulk.Start(ctx)
	low.Start(ctx)
	defer bulk.Stop()
	defer low.Stop()

	bulk.Enqueue("b1", nil)
	low.Enqueue("l1", nil)

	// While bulk has a backlog the low-priority job must wait.
	time.Sleep(250 * time.Millisecond)
	mu.Lock()
	ran := len(order)
	mu.Unlock()
	if ran != 0 {
		t.Fatal("low-priority job ran while the bulk queue was backlogged")
	}

	close(bulkRelease)
	waitFor(t, 2*time.Second, func() bool { return low.Stats().Completed == 1 })
}

func TestQueue_StopRejectsNewWork(t *testing.T) {
	q := New("test", Policy{Attempts: 1, Workers: 1}, func(ctx context.Context, payload []byte) error { return nil })
	q.Start(context.Background())
	q.Stop()
	if ok, err := q.Enqueue("late", nil); ok || err == nil {
		t.Error("enqueue after Stop should be rejected")
	}
}
