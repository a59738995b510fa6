package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aurynx/discovery/pkg/buildinfo"
	"github.com/aurynx/discovery/pkg/ipcsock"
	"github.com/aurynx/discovery/pkg/lockfile"
	"github.com/aurynx/discovery/pkg/logging"
	"github.com/aurynx/discovery/pkg/must"
)

const (
	// reapProbeTimeout is the timeout for the health probe issued against an
	// incumbent before it is presumed dead.
	reapProbeTimeout = 300 * time.Millisecond
	// reapInitialBackoff is the first retry delay in the reap loop.
	reapInitialBackoff = 20 * time.Millisecond
	// reapMaxBackoff caps the exponential backoff between reap attempts.
	reapMaxBackoff = 400 * time.Millisecond
	// reapTotalBudget bounds the total time spent retrying acquisition
	// after the incumbent is presumed dead.
	reapTotalBudget = 3 * time.Second
)

// AlreadyHeldError indicates that the lock is held by a live incumbent. It is
// not a failure of the Lock Manager; it's the normal "someone else owns
// this" outcome that the Supervisor translates into exit code 3.
type AlreadyHeldError struct {
	Incumbent Record
}

func (e *AlreadyHeldError) Error() string {
	return fmt.Sprintf("daemon lock held by pid %d (socket %s)", e.Incumbent.PID, e.Incumbent.SocketPath)
}

// Lock represents a held daemon lock for a specific output path.
type Lock struct {
	locker     *lockfile.Locker
	path       string
	instanceID string
	logger     *logging.Logger
}

// AcquireOptions controls lock acquisition behavior.
type AcquireOptions struct {
	// SocketPath is the IPC socket this daemon will expose, recorded so a
	// contender can health-probe it.
	SocketPath string
	// Force unlinks a stale lock path before attempting acquisition,
	// corresponding to the CLI's --force flag. It must only ever be set in
	// response to an explicit, interactive user affirmation (§4.1 step 6).
	Force bool
}

// Acquire attempts to acquire the daemon lock for canonicalOutputPath. On
// success it returns a held Lock. If the lock is held by a live incumbent, it
// returns an *AlreadyHeldError. If the incumbent appears dead, it reaps the
// lock within a bounded retry budget.
func Acquire(canonicalOutputPath string, options AcquireOptions, logger *logging.Logger) (*Lock, error) {
	lockPath, err := LockPath(canonicalOutputPath)
	if err != nil {
		return nil, fmt.Errorf("unable to compute lock path: %w", err)
	}

	instanceID := uuid.NewString()
	logger = logger.Sublogger(instanceID[:8])

	if options.Force {
		logger.Warnf("--force specified; unlinking any stale lock at %s", lockPath)
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("unable to remove lock file for --force: %w", err)
		}
	}

	return acquireWithReap(lockPath, options.SocketPath, instanceID, logger)
}

// acquireWithReap performs the acquire-lock / verify-inode / probe-incumbent
// / reap sequence described in §4.1.
func acquireWithReap(lockPath, socketPath, instanceID string, logger *logging.Logger) (*Lock, error) {
	deadline := time.Now().Add(reapTotalBudget)
	backoff := reapInitialBackoff

	for {
		lock, err := tryAcquireOnce(lockPath, socketPath, instanceID, logger)
		if err == nil {
			return lock, nil
		}

		var already *AlreadyHeldError
		if asAlreadyHeld(err, &already) {
			return nil, already
		}
		if err != errIncumbentPresumedDead {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("unable to reap stale lock within %s", reapTotalBudget)
		}
		logger.Infof("incumbent at %s appears dead; retrying acquisition in %s", lockPath, backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > reapMaxBackoff {
			backoff = reapMaxBackoff
		}
	}
}

func asAlreadyHeld(err error, target **AlreadyHeldError) bool {
	if e, ok := err.(*AlreadyHeldError); ok {
		*target = e
		return true
	}
	return false
}

var errIncumbentPresumedDead = fmt.Errorf("incumbent presumed dead")

// tryAcquireOnce performs a single attempt at the full acquire sequence:
// open-or-create, non-blocking lock, inode verification, and (on contention)
// a health probe of the incumbent.
func tryAcquireOnce(lockPath, socketPath, instanceID string, logger *logging.Logger) (*Lock, error) {
	locker, err := lockfile.NewLocker(lockPath, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to open lock file: %w", err)
	}

	if err := locker.Lock(false); err != nil {
		must.Close(locker, logger)
		if err == lockfile.ErrWouldBlock {
			return nil, handleContention(lockPath, socketPath, logger)
		}
		return nil, fmt.Errorf("unable to acquire lock: %w", err)
	}

	// Inode verification (§4.1 step 3, invariant 2 in §8): confirm that the
	// path we locked by name still refers to the descriptor we hold. If a
	// third party unlinked and recreated the path between our open and our
	// lock, the name now points somewhere else and we must not proceed.
	verified, err := verifyInode(locker)
	if err != nil {
		must.Unlock(locker, logger)
		must.Close(locker, logger)
		return nil, fmt.Errorf("unable to verify lock file identity: %w", err)
	}
	if !verified {
		must.Unlock(locker, logger)
		must.Close(locker, logger)
		logger.Warnf("lock file %s was replaced during acquisition; retrying", lockPath)
		return nil, errIncumbentPresumedDead
	}

	record := Record{
		PID:             os.Getpid(),
		SocketPath:      socketPath,
		StartedAt:       time.Now(),
		ProtocolVersion: buildinfo.ProtocolVersion,
	}
	if err := writeRecord(locker.File(), record); err != nil {
		must.Unlock(locker, logger)
		must.Close(locker, logger)
		return nil, fmt.Errorf("unable to write lock record: %w", err)
	}

	return &Lock{locker: locker, path: lockPath, instanceID: instanceID, logger: logger}, nil
}

// handleContention is invoked when the advisory lock is already held. It
// reads the incumbent's record and issues a health probe; a responsive
// incumbent means AlreadyHeld, an unresponsive one means the caller should
// retry acquisition (the OS will have released the advisory lock once the
// dead process's descriptors close).
func handleContention(lockPath, _ string, logger *logging.Logger) error {
	incumbent, err := readRecord(lockPath)
	if err != nil {
		// We couldn't even read the record (e.g. it's mid-write). Treat this
		// as transient contention rather than death.
		return &AlreadyHeldError{Incumbent: Record{SocketPath: "<unknown>"}}
	}

	if probe(incumbent.SocketPath, reapProbeTimeout) == nil {
		return &AlreadyHeldError{Incumbent: incumbent}
	}

	logger.Infof("incumbent pid %d did not respond to health probe", incumbent.PID)
	return errIncumbentPresumedDead
}

// probe issues a ping against socketPath and verifies the response,
// implementing the health probe described in §4.1 and §4.6.
func probe(socketPath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := ipcsock.DialContext(ctx, socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte("ping\n")); err != nil {
		return err
	}

	buffer := make([]byte, 5)
	n, err := conn.Read(buffer)
	if err != nil {
		return err
	}
	if string(buffer[:n]) != "pong\n" {
		return fmt.Errorf("unexpected probe response: %q", buffer[:n])
	}
	return nil
}

// verifyInode re-stats the lock path by name and compares it against the
// stat of the already-open descriptor.
func verifyInode(locker *lockfile.Locker) (bool, error) {
	byDescriptor, err := locker.File().Stat()
	if err != nil {
		return false, err
	}
	byName, err := os.Stat(locker.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(byDescriptor, byName), nil
}

// Release releases the daemon lock: it unlocks and closes the descriptor and
// removes the lock file, since we are its sole legitimate owner. Calls after
// the first are no-ops.
func (l *Lock) Release() error {
	if l.locker == nil {
		return nil
	}
	locker := l.locker
	l.locker = nil
	if err := locker.Unlock(); err != nil {
		must.Close(locker, l.logger)
		return fmt.Errorf("unable to unlock: %w", err)
	}
	if err := locker.Close(); err != nil {
		return fmt.Errorf("unable to close locker: %w", err)
	}
	must.OSRemove(l.path, l.logger)
	return nil
}
