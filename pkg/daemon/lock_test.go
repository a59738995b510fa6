package daemon

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aurynx/discovery/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelDisabled, io.Discard)
}

// servePing runs a minimal ping responder on a unix socket for the duration
// of the test, standing in for the real IPC server's handling of "ping".
func servePing(t *testing.T, socketPath string) func() {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buffer := make([]byte, 64)
				if _, err := conn.Read(buffer); err != nil {
					return
				}
				conn.Write([]byte("pong\n"))
			}()
		}
	}()

	return func() {
		close(done)
		listener.Close()
	}
}

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "output.php")
	if err := os.WriteFile(output, []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}

	canonical, err := Canonicalize(output)
	if err != nil {
		t.Fatal(err)
	}

	socket := filepath.Join(dir, "daemon.sock")
	lock, err := Acquire(canonical, AcquireOptions{SocketPath: socket}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if lock == nil {
		t.Fatal("expected a non-nil lock")
	}

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireReportsAlreadyHeldForLiveIncumbent(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "output.php")
	if err := os.WriteFile(output, []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}

	canonical, err := Canonicalize(output)
	if err != nil {
		t.Fatal(err)
	}

	socket := filepath.Join(dir, "daemon.sock")
	stop := servePing(t, socket)
	defer stop()

	first, err := Acquire(canonical, AcquireOptions{SocketPath: socket}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer first.Release()

	_, err = Acquire(canonical, AcquireOptions{SocketPath: socket}, testLogger())
	if err == nil {
		t.Fatal("expected an error from a contended acquire")
	}

	var alreadyHeld *AlreadyHeldError
	if !errors.As(err, &alreadyHeld) {
		t.Fatalf("expected an *AlreadyHeldError, got %T: %v", err, err)
	}
	if alreadyHeld.Incumbent.PID != os.Getpid() {
		t.Fatalf("expected incumbent PID %d, got %d", os.Getpid(), alreadyHeld.Incumbent.PID)
	}
}

func TestAcquireReapsDeadIncumbent(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "output.php")
	if err := os.WriteFile(output, []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}

	canonical, err := Canonicalize(output)
	if err != nil {
		t.Fatal(err)
	}

	// Acquire the lock with a record pointing at a socket nobody is listening
	// on, then (below) drop it without calling Release, simulating a process
	// that died holding the lock.
	lockPath, err := LockPath(canonical)
	if err != nil {
		t.Fatal(err)
	}

	deadSocket := filepath.Join(dir, "dead.sock")
	stopServing := servePing(t, deadSocket)
	stopServing() // Bring the listener down immediately; nothing answers there.

	logger := testLogger()
	first, err := Acquire(canonical, AcquireOptions{SocketPath: deadSocket}, logger)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate the holder's process dying without releasing: close the
	// descriptor directly (which drops the advisory lock at the OS level)
	// without unlocking or removing the lock file, leaving the stale record
	// behind for a contender to discover.
	if err := first.locker.Close(); err != nil {
		t.Fatal(err)
	}

	liveSocket := filepath.Join(dir, "live.sock")
	stop := servePing(t, liveSocket)
	defer stop()

	start := time.Now()
	second, err := Acquire(canonical, AcquireOptions{SocketPath: liveSocket}, logger)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed >= reapTotalBudget {
		t.Fatalf("expected reap to finish within %s, took %s", reapTotalBudget, elapsed)
	}
	defer second.Release()

	if second.path != lockPath {
		t.Fatalf("expected lock path %s, got %s", lockPath, second.path)
	}
}
