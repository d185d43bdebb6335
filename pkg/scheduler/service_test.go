package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"botkit/pkg/logx"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Workers: 2, QueueSize: 64}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		s.Stop(context.Background())
		cancel()
	})
	return s
}

func TestRunAsyncExecutesEachSubmissionOnce(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	var a, b atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	s.RunAsync("a", func(ctx context.Context) error {
		a.Add(1)
		wg.Done()
		return nil
	})
	s.RunAsync("b", func(ctx context.Context) error {
		b.Add(1)
		wg.Done()
		return nil
	})

	waitDone(t, &wg, 2*time.Second)
	// Both completed; order between them is deliberately unspecified.
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("expected exactly one execution each, got a=%d b=%d", a.Load(), b.Load())
	}
}

func TestScheduleOnceTiming(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	const delay = 150 * time.Millisecond
	var ran atomic.Int32
	executed := make(chan time.Time, 1)
	start := time.Now()
	s.ScheduleOnce("once", delay, func(ctx context.Context) error {
		ran.Add(1)
		executed <- time.Now()
		return nil
	})

	time.Sleep(delay / 3)
	if n := ran.Load(); n != 0 {
		t.Fatalf("task ran %d times before the delay elapsed", n)
	}

	select {
	case at := <-executed:
		if got := at.Sub(start); got < delay {
			t.Fatalf("task ran after %v, want >= %v", got, delay)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	time.Sleep(100 * time.Millisecond)
	if n := ran.Load(); n != 1 {
		t.Fatalf("task ran %d times, want exactly 1", n)
	}
}

func TestScheduleOnceCancelBeforeStart(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	var ran atomic.Int32
	h := s.ScheduleOnce("cancelled", 100*time.Millisecond, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	h.Cancel()

	time.Sleep(300 * time.Millisecond)
	if n := ran.Load(); n != 0 {
		t.Fatalf("cancelled task ran %d times", n)
	}
	// Cancelling again is a harmless no-op.
	h.Cancel()
	if !h.Cancelled() {
		t.Fatal("handle should report cancelled")
	}
}

func TestRecurringCadenceAndCancel(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	var mu sync.Mutex
	var stamps []time.Time
	h, err := s.ScheduleRecurring("tick", NewTrigger(50*time.Millisecond, 100*time.Millisecond), func(ctx context.Context) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}

	time.Sleep(550 * time.Millisecond)
	h.Cancel()

	mu.Lock()
	n := len(stamps)
	cp := append([]time.Time(nil), stamps...)
	mu.Unlock()

	if n < 3 || n > 7 {
		t.Fatalf("expected 3..7 executions in the observation window, got %d", n)
	}
	for i := 1; i < len(cp); i++ {
		gap := cp[i].Sub(cp[i-1])
		if gap < 50*time.Millisecond || gap > 300*time.Millisecond {
			t.Fatalf("execution %d spaced %v from previous, want ~100ms", i, gap)
		}
	}

	// No further executions after cancel.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	after := len(stamps)
	mu.Unlock()
	if after != n {
		t.Fatalf("executions continued after cancel: %d -> %d", n, after)
	}
}

func TestRecurringFaultIsolation(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	// A task that fails on its first cycle keeps its remaining cycles,
	// and an unrelated schedule is unaffected.
	var faulty, healthy atomic.Int32
	hf, err := s.ScheduleRecurring("faulty", Every(80*time.Millisecond), func(ctx context.Context) error {
		if faulty.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	hh, err := s.ScheduleRecurring("healthy", Every(80*time.Millisecond), func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}

	time.Sleep(400 * time.Millisecond)
	hf.Cancel()
	hh.Cancel()

	if n := faulty.Load(); n < 2 {
		t.Fatalf("faulty task did not run again after failing: %d executions", n)
	}
	if n := healthy.Load(); n < 2 {
		t.Fatalf("healthy task starved by unrelated failure: %d executions", n)
	}
}

func TestPanicDoesNotKillWorkers(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	var wg sync.WaitGroup
	wg.Add(2)
	s.RunAsync("panics", func(ctx context.Context) error {
		defer wg.Done()
		panic("kaboom")
	})
	s.RunAsync("panics-too", func(ctx context.Context) error {
		defer wg.Done()
		panic("kaboom")
	})
	waitDone(t, &wg, 2*time.Second)

	// Both workers took a panic; the pool must still execute new work.
	done := make(chan struct{})
	s.RunAsync("survivor", func(ctx context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not survive panicking tasks")
	}

	hist := s.History()
	found := false
	for _, item := range hist {
		if item.Name == "panics" && item.Error != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("panic not recorded in run history")
	}
}

func TestOverlapSkipSerializesSameSchedule(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	var inFlight, maxInFlight atomic.Int32
	h, err := s.ScheduleRecurring("slow", Every(40*time.Millisecond), func(ctx context.Context) error {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(150 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}

	time.Sleep(600 * time.Millisecond)
	h.Cancel()

	if m := maxInFlight.Load(); m > 1 {
		t.Fatalf("same-schedule executions overlapped: max in flight = %d", m)
	}
}

func TestAddCronUpsertAndRemove(t *testing.T) {
	t.Parallel()
	s := newTestService(t)

	if _, err := s.AddCron("cleanup", "@every 1h", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if _, err := s.AddCron("cleanup", "@every 2h", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCron upsert: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("expected 1 schedule after upsert, got %d", len(snap.Schedules))
	}
	if snap.Schedules[0].Spec != "@every 2h0m0s" && snap.Schedules[0].Spec != "@every 2h" {
		t.Fatalf("unexpected spec after upsert: %s", snap.Schedules[0].Spec)
	}

	if !s.Remove("cleanup") {
		t.Fatal("Remove returned false for existing schedule")
	}
	if s.Remove("cleanup") {
		t.Fatal("Remove returned true for missing schedule")
	}
}

func TestAddCronInvalidSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if _, err := s.AddCron("bad", "not-a-spec", 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func waitDone(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for tasks")
	}
}
