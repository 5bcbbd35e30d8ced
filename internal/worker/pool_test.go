package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
)

func TestSubmit_RunsTasks(t *testing.T) {
	p, err := New(4, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release(time.Second)

	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	if n.Load() != 4 {
		t.Errorf("ran %d tasks, want 4", n.Load())
	}
	if p.Stats().Cap != 4 {
		t.Errorf("Cap = %d, want 4", p.Stats().Cap)
	}
}

func TestSubmit_OverloadDoesNotBlock(t *testing.T) {
	p, err := New(2, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release(time.Second)

	gate := make(chan struct{})
	defer close(gate)
	for i := 0; i < 2; i++ {
		if err := p.Submit(func() { <-gate }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- p.Submit(func() {}) }()

	select {
	case err := <-done:
		if !errors.Is(err, ants.ErrPoolOverload) {
			t.Errorf("Submit() error = %v, want ErrPoolOverload", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit() blocked on a saturated pool")
	}
	if got := p.Stats().Running; got != 2 {
		t.Errorf("Running = %d, want 2", got)
	}
}

func TestSubmit_RecoversPanics(t *testing.T) {
	p, err := New(2, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release(time.Second)

	p.Submit(func() { panic("boom") })

	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("Submit() after panic error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not survive a panicking task")
	}
}

func TestSubmit_AfterRelease(t *testing.T) {
	p, err := New(0, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Stats().Cap != DefaultSize {
		t.Errorf("Cap = %d, want %d", p.Stats().Cap, DefaultSize)
	}
	p.Release(0)

	err = p.Submit(func() {})
	if !errors.Is(err, ants.ErrPoolClosed) {
		t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
	}
}
