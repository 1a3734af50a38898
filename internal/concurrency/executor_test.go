package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/framenet/internal/concurrency"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	e := concurrency.NewExecutor(4, -1)
	defer e.Close()

	const n = 200
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		if err := e.Submit(func() {
			count.Add(1)
			wg.Done()
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to run")
	}
	if count.Load() != n {
		t.Fatalf("expected %d tasks run, got %d", n, count.Load())
	}
}

func TestPanicInTaskDoesNotKillWorker(t *testing.T) {
	e := concurrency.NewExecutor(1, -1)
	defer e.Close()

	e.Submit(func() { panic("boom") })

	var ran atomic.Bool
	done := make(chan struct{})
	e.Submit(func() {
		ran.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	if !ran.Load() {
		t.Fatal("expected subsequent task to run")
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	e := concurrency.NewExecutor(2, -1)
	e.Close()
	if err := e.Submit(func() {}); err != concurrency.ErrExecutorClosed {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}
