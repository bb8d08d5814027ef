package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTasksRunConcurrently(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var wg sync.WaitGroup
	var ran int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		})
	}
	wg.Wait()

	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Fatalf("ran = %d, want 10", got)
	}
}

func TestPanicIsCaughtAndDoesNotStopPool(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	var ran int32
	var wg2 sync.WaitGroup
	wg2.Add(1)
	p.Submit(func() {
		defer wg2.Done()
		atomic.AddInt32(&ran, 1)
	})
	wg2.Wait()

	if ran != 1 {
		t.Fatalf("pool stopped processing tasks after a panic")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	p := New(2)
	p.Shutdown()
	p.Shutdown() // must not panic or block
}

func TestShutdownDiscardsUnstartedDoesNotHang(t *testing.T) {
	p := New(1)

	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	p.Submit(func() {
		started.Done()
		<-block
	})
	started.Wait() // ensure the single worker slot is occupied

	for i := 0; i < 5; i++ {
		p.Submit(func() {})
	}

	done := make(chan struct{})
	go func() {
		close(block) // let the in-flight task finish
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return promptly")
	}
}
