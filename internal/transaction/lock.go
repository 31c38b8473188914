// Package transaction guards a download destination so that only one
// invocation writes its part files at a time.
package transaction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// StaleLockThreshold is the maximum age of a lock before it's considered stale.
	StaleLockThreshold = 10 * time.Minute
)

var (
	ErrLockExists = errors.New("destination lock exists: another download may be in progress")
)

// Info is the metadata stored in a lock file.
type Info struct {
	PID       int
	RunID     string
	Timestamp time.Time
}

// Lock is an exclusive claim on a destination path.
type Lock struct {
	path string
	file *os.File
	info Info
}

// LockPath returns the lock file used for destination.
func LockPath(destination string) string {
	return destination + ".lock"
}

// AcquireLock claims destination for this process. runID identifies the
// invocation in the lock file; a new UUID is used when it is empty.
// Uses O_CREATE|O_EXCL for atomic lock creation. A lock older than
// StaleLockThreshold is replaced.
func AcquireLock(ctx context.Context, destination, runID string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	if runID == "" {
		runID = uuid.New().String()
	}
	lockPath := LockPath(destination)

	// Try to create lock file exclusively
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if isStale, _ := isLockStale(lockPath); !isStale {
			return nil, ErrLockExists
		}
		// Remove stale lock and retry once
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	info := Info{PID: os.Getpid(), RunID: runID, Timestamp: time.Now().UTC().Truncate(time.Second)}
	lockData := fmt.Sprintf("pid=%d\nrun_id=%s\ntimestamp=%s\n", info.PID, info.RunID, info.Timestamp.Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{
		path: lockPath,
		file: file,
		info: info,
	}, nil
}

// Info returns the metadata written for this lock.
func (l *Lock) Info() Info {
	return l.info
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// ReadInfo parses the lock file guarding destination. Unknown keys are
// ignored.
func ReadInfo(destination string) (*Info, error) {
	f, err := os.Open(LockPath(destination))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := &Info{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "run_id":
			info.RunID = value
		case "timestamp":
			info.Timestamp, _ = time.Parse(time.RFC3339, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	return info, nil
}

// isLockStale checks if a lock file is older than the stale lock threshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}

	age := time.Since(info.ModTime())
	return age > StaleLockThreshold, nil
}
