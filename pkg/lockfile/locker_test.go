package lockfile

import (
	"path/filepath"
	"testing"
)

func TestLockAndUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	first, err := NewLocker(path, 0600)
	if err != nil {
		t.Fatalf("unable to create locker: %v", err)
	}
	defer first.Close()

	if err := first.Lock(false); err != nil {
		t.Fatalf("unable to acquire initial lock: %v", err)
	}

	second, err := NewLocker(path, 0600)
	if err != nil {
		t.Fatalf("unable to create second locker: %v", err)
	}
	defer second.Close()

	if err := second.Lock(false); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("unable to release first lock: %v", err)
	}

	if err := second.Lock(false); err != nil {
		t.Fatalf("unable to acquire lock after release: %v", err)
	}
	if err := second.Unlock(); err != nil {
		t.Fatalf("unable to release second lock: %v", err)
	}
}
