package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is the on-disk sentinel written into the lock file by its current
// holder (§3 LockRecord). It exists so that a contending process can, without
// itself acquiring the lock, learn enough about the incumbent (its socket,
// for a health probe; its pid, for a human-readable contention message) to
// decide whether to wait, report AlreadyHeld, or reap a dead owner.
type Record struct {
	// PID is the process ID of the lock holder.
	PID int `json:"pid"`
	// SocketPath is the path of the holder's IPC socket.
	SocketPath string `json:"socket_path"`
	// StartedAt is when the holder acquired the lock.
	StartedAt time.Time `json:"started_at"`
	// ProtocolVersion identifies the lock record / IPC wire format
	// generation the holder speaks.
	ProtocolVersion int `json:"protocol_version"`
}

// writeRecord serializes r and writes it to file, truncating any prior
// contents. The caller must already hold the advisory lock on file.
func writeRecord(file *os.File, r Record) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("unable to truncate lock file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("unable to seek lock file: %w", err)
	}
	encoded, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("unable to encode lock record: %w", err)
	}
	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("unable to write lock record: %w", err)
	}
	return file.Sync()
}

// readRecord reads and parses the lock record at path without acquiring the
// lock. It is used by a contending process to learn about the incumbent.
func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("unable to read lock record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("unable to decode lock record: %w", err)
	}
	return r, nil
}
