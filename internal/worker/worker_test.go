package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ========================================
// Pool Tests
// ========================================

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)

	if p.concurrency != 4 {
		t.Errorf("concurrency = %d, want 4 (default)", p.concurrency)
	}
	if cap(p.queue) != 256 {
		t.Errorf("queue size = %d, want 256 (default)", cap(p.queue))
	}
	if p.logger == nil {
		t.Error("logger should be set to default")
	}
}

func TestPool_RunsTasks(t *testing.T) {
	p := New(Config{Concurrency: 3, QueueSize: 10}, nil)
	p.Start(context.Background())

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		if err := p.Submit(Task{Name: "count", Run: func(ctx context.Context) { count.Add(1) }}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	p.Stop()

	if got := count.Load(); got != 10 {
		t.Errorf("ran %d tasks, want 10", got)
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	p := New(Config{Concurrency: 2, QueueSize: 10}, nil)
	p.Start(context.Background())

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		_ = p.Submit(Task{Name: "slow", Run: func(ctx context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}})
	}
	p.Stop()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPool_PanicRecovered(t *testing.T) {
	p := New(Config{Concurrency: 1, QueueSize: 4}, nil)
	var doneNames []string
	var mu sync.Mutex
	p.OnTaskDone = func(name string, panicked bool) {
		mu.Lock()
		defer mu.Unlock()
		if panicked {
			doneNames = append(doneNames, name)
		}
	}
	p.Start(context.Background())

	var recovered any
	var after atomic.Bool
	_ = p.Submit(Task{
		Name:    "boom",
		Run:     func(ctx context.Context) { panic("kaboom") },
		OnPanic: func(ctx context.Context, r any) { recovered = r },
	})
	_ = p.Submit(Task{Name: "after", Run: func(ctx context.Context) { after.Store(true) }})
	p.Stop()

	if recovered != "kaboom" {
		t.Errorf("recovered = %v, want kaboom", recovered)
	}
	if !after.Load() {
		t.Error("worker did not survive the panic")
	}
	if len(doneNames) != 1 || doneNames[0] != "boom" {
		t.Errorf("panicked tasks = %v, want [boom]", doneNames)
	}
}

func TestPool_PanickingHandler(t *testing.T) {
	p := New(Config{Concurrency: 1}, nil)
	p.Start(context.Background())

	var after atomic.Bool
	_ = p.Submit(Task{
		Name:    "double",
		Run:     func(ctx context.Context) { panic("first") },
		OnPanic: func(ctx context.Context, r any) { panic("second") },
	})
	_ = p.Submit(Task{Name: "after", Run: func(ctx context.Context) { after.Store(true) }})
	p.Stop()

	if !after.Load() {
		t.Error("worker did not survive a panicking handler")
	}
}

func TestPool_Busy(t *testing.T) {
	p := New(Config{Concurrency: 1, QueueSize: 4}, nil)
	if p.Busy() {
		t.Fatal("new pool should not be busy")
	}
	p.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(Task{Name: "block", Run: func(ctx context.Context) {
		close(started)
		<-release
	}}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started
	if !p.Busy() {
		t.Error("pool with a running task should be busy")
	}

	close(release)
	p.Stop()
	if p.Busy() {
		t.Error("stopped pool should not be busy")
	}
}

func TestPool_SubmitErrors(t *testing.T) {
	p := New(Config{Concurrency: 1, QueueSize: 1}, nil)

	// Not started: the single queue slot fills and the next submit overflows.
	if err := p.Submit(Task{Name: "a", Run: func(context.Context) {}}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := p.Submit(Task{Name: "b", Run: func(context.Context) {}}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
	if err := p.Submit(Task{Name: "nil"}); err == nil {
		t.Error("Submit() with nil Run should fail")
	}

	p.Start(context.Background())
	p.Stop()
	p.Stop() // idempotent

	if err := p.Submit(Task{Name: "late", Run: func(context.Context) {}}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after Stop error = %v, want ErrStopped", err)
	}
}

// ========================================
// KeyedMutex Tests
// ========================================

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("run-1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := km.size(); n != 0 {
		t.Errorf("size() = %d, want 0 after all unlocks", n)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
