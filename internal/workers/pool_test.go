package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsAndReportsResult(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	ok := p.Submit("ok", func() error { return nil })
	boom := errors.New("boom")
	bad := p.Submit("bad", func() error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ok.Wait(ctx); err != nil {
		t.Errorf("ok task: %v", err)
	}
	if err := bad.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("bad task: got %v, want boom", err)
	}
	if !errors.Is(bad.Err(), boom) {
		t.Errorf("Err after completion: got %v", bad.Err())
	}
}

func TestConcurrencyBoundedBySize(t *testing.T) {
	const size = 4
	p := New(size, nil)
	defer p.Close()

	var running, peak int32
	release := make(chan struct{})
	var tasks []*Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, p.Submit("slow", func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return nil
		}))
	}

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&running) < size && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, task := range tasks {
		if err := task.Wait(ctx); err != nil {
			t.Fatalf("task: %v", err)
		}
	}
	if peak != size {
		t.Errorf("peak concurrency: got %d, want %d", peak, size)
	}
}

func TestSubmitDoesNotBlockWhenBusy(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	release := make(chan struct{})
	p.Submit("blocker", func() error { <-release; return nil })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Submit("queued", func() error { return nil })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked while the only worker was busy")
	}
	if p.Pending() == 0 {
		t.Error("expected queued tasks while worker is blocked")
	}
	close(release)
}

func TestPanicRecovered(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	task := p.Submit("explode", func() error { panic("kaboom") })
	err := task.Wait(context.Background())
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic error, got %v", err)
	}

	after := p.Submit("after", func() error { return nil })
	if err := after.Wait(context.Background()); err != nil {
		t.Errorf("pool unusable after panic: %v", err)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	p := New(1, nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		p.Submit("ordered", func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	p.Close()

	if len(order) != 5 {
		t.Fatalf("expected all 5 queued tasks to run, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("single worker should run FIFO, got %v", order)
			break
		}
	}

	late := p.Submit("late", func() error { return nil })
	if err := late.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("submit after close: got %v, want ErrClosed", err)
	}
	p.Close()
}

func TestWaitHonoursContext(t *testing.T) {
	p := New(1, nil)
	release := make(chan struct{})
	task := p.Submit("slow", func() error { <-release; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := task.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if task.Err() != nil {
		t.Errorf("Err on pending task should be nil, got %v", task.Err())
	}

	close(release)
	p.Close()
	select {
	case <-task.Done():
	default:
		t.Error("task should be done after Close")
	}
}

func TestCompleted(t *testing.T) {
	boom := errors.New("boom")
	task := Completed("pre", boom)
	select {
	case <-task.Done():
	default:
		t.Fatal("Completed task should already be done")
	}
	if !errors.Is(task.Err(), boom) {
		t.Errorf("Err: got %v", task.Err())
	}
}
