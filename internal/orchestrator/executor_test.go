package orchestrator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutor_RunsInOrder(t *testing.T) {
	e := newExecutor()

	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		i := i
		e.Submit(func() {
			defer wg.Done()
			got = append(got, i)
		})
	}
	wg.Wait()
	e.Close()

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, tasks ran out of order", i, v)
		}
	}
}

func TestExecutor_NestedSubmit(t *testing.T) {
	e := newExecutor()
	defer e.Close()

	done := make(chan []string, 1)
	var order []string
	e.Submit(func() {
		order = append(order, "outer")
		e.Submit(func() {
			order = append(order, "inner")
			done <- order
		})
		order = append(order, "outer-end")
	})

	select {
	case got := <-done:
		if len(got) != 3 || got[1] != "outer-end" || got[2] != "inner" {
			t.Errorf("order = %v, nested task must run after its parent", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nested task never ran")
	}
}

func TestExecutor_CloseDrainsAndRejects(t *testing.T) {
	e := newExecutor()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		e.Submit(func() { ran.Add(1) })
	}
	e.Close()

	if ran.Load() != 10 {
		t.Errorf("ran %d tasks before close, want 10", ran.Load())
	}
	if e.Submit(func() {}) {
		t.Error("Submit after Close should report false")
	}
	e.Close()
}

func TestTimer_FiresOnExecutor(t *testing.T) {
	e := newExecutor()
	defer e.Close()

	fired := make(chan struct{})
	schedule(e, 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimer_CancelIsIdempotent(t *testing.T) {
	e := newExecutor()
	defer e.Close()

	var fired atomic.Bool
	tm := schedule(e, 20*time.Millisecond, func() { fired.Store(true) })
	tm.Cancel()
	tm.Cancel()
	if !tm.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer fired")
	}

	var nilTimer *Timer
	nilTimer.Cancel()
	if nilTimer.Cancelled() {
		t.Error("nil timer should not report cancelled")
	}
}

func TestTimer_CancelAfterQueuedFiring(t *testing.T) {
	e := newExecutor()
	defer e.Close()

	block := make(chan struct{})
	e.Submit(func() { <-block })

	var fired atomic.Bool
	tm := schedule(e, time.Millisecond, func() { fired.Store(true) })
	time.Sleep(20 * time.Millisecond) // firing is now queued behind the blocker
	tm.Cancel()
	close(block)

	done := make(chan struct{})
	e.Submit(func() { close(done) })
	<-done

	if fired.Load() {
		t.Error("firing queued before Cancel must be skipped")
	}
}
