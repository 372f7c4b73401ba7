package flock

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestTryLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "discharge.lock")
	a, b := New(path), New(path)

	if err := a.TryLock(); err != nil {
		t.Fatalf("a.TryLock() error = %v", err)
	}
	if !a.Held() {
		t.Fatalf("a must hold the lock")
	}
	if err := b.TryLock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("b.TryLock() error = %v, want ErrLocked", err)
	}
	if err := a.TryLock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("a.TryLock() twice error = %v, want ErrLocked", err)
	}

	if err := a.Unlock(); err != nil {
		t.Fatalf("a.Unlock() error = %v", err)
	}
	if err := b.TryLock(); err != nil {
		t.Fatalf("b.TryLock() after release error = %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("b.Unlock() error = %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("second Unlock() error = %v", err)
	}
}

func TestLockWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discharge.lock")
	a, b := New(path), New(path)

	if err := a.Lock(); err != nil {
		t.Fatalf("a.Lock() error = %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- b.Lock()
	}()

	select {
	case err := <-acquired:
		t.Fatalf("b.Lock() returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := a.Unlock(); err != nil {
		t.Fatalf("a.Unlock() error = %v", err)
	}

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("b.Lock() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("b.Lock() did not return after release")
	}
	_ = b.Unlock()
}
