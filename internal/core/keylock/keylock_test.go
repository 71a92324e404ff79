package keylock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	l := New()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "a|b", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	release()
	if l.Len() != 0 {
		t.Errorf("Len() after release = %d, want 0", l.Len())
	}
}

func TestAcquire_Timeout(t *testing.T) {
	l := New()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = l.Acquire(ctx, "k", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second acquire: got %v, want ErrTimeout", err)
	}

	// A timed-out waiter must not leak an entry reference forever.
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestAcquire_DisjointKeys(t *testing.T) {
	l := New()
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "p1|w1", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire first key: %v", err)
	}
	defer r1()

	r2, err := l.Acquire(ctx, "p2|w1", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire second key: %v", err)
	}
	defer r2()
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New()

	release, err := l.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Acquire(ctx, "k", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestAcquire_Sequencing(t *testing.T) {
	l := New()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, "k", time.Second)
		if err != nil {
			t.Errorf("waiter acquire: %v", err)
			close(done)
			return
		}
		r()
		close(done)
	}()

	// Waiter must block until the holder releases.
	select {
	case <-done:
		t.Fatal("waiter acquired while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}

	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}
