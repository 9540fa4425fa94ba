package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	m := NewKeyMutex()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			if err := m.Acquire(ctx, "same-key"); err != nil {
				t.Errorf("Acquire() error: %v", err)
				return
			}
			defer m.Release("same-key")

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}

	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders of the same key = %d, want 1", maxActive)
	}
}

func TestKeyMutexIndependentKeys(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()

	if err := m.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire(a) error: %v", err)
	}
	defer m.Release("a")

	done := make(chan struct{})
	go func() {
		if err := m.Acquire(ctx, "b"); err != nil {
			t.Errorf("Acquire(b) error: %v", err)
			return
		}
		m.Release("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire on an independent key blocked on an unrelated held key")
	}
}

func TestKeyMutexRespectsContextCancellation(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()
	if err := m.Acquire(ctx, "held"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer m.Release("held")

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if err := m.Acquire(cancelCtx, "held"); err == nil {
		t.Fatal("expected Acquire to fail once the context deadline passed")
	}
}
