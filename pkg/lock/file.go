package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FileName is the lock file created in the mirror root.
const FileName = ".gemmirror.lock"

// FileLocker holds a lock by exclusively creating a file.
type FileLocker struct {
	path       string
	staleAfter time.Duration
}

// NewFileLocker returns a locker using dir/.gemmirror.lock. A lock older
// than staleAfter is broken on the next acquire; zero never breaks locks.
func NewFileLocker(dir string, staleAfter time.Duration) *FileLocker {
	return &FileLocker{path: filepath.Join(dir, FileName), staleAfter: staleAfter}
}

// Path returns the lock file path.
func (l *FileLocker) Path() string { return l.path }

// Acquire implements [Locker].
func (l *FileLocker) Acquire(ctx context.Context) (Release, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	info := newInfo()
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		if !l.breakStale() {
			return nil, l.lockedError()
		}
		f, err = os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			return nil, l.lockedError()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(l.path)
		return nil, fmt.Errorf("write lock file: %w", werr)
	}

	return func() error { return l.release(info.Token) }, nil
}

// Holder returns the current lock holder, or nil if unlocked.
func (l *FileLocker) Holder() (*Info, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &info, nil
}

func (l *FileLocker) release(token string) error {
	info, err := l.Holder()
	if err != nil {
		return err
	}
	if info == nil || info.Token != token {
		// broken as stale and taken over
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func (l *FileLocker) breakStale() bool {
	if l.staleAfter <= 0 {
		return false
	}
	fi, err := os.Stat(l.path)
	if err != nil || time.Since(fi.ModTime()) < l.staleAfter {
		return false
	}
	return os.Remove(l.path) == nil
}

func (l *FileLocker) lockedError() error {
	if info, err := l.Holder(); err == nil && info != nil {
		return fmt.Errorf("%w (%s pid %d since %s)", ErrLocked, info.Host, info.PID, info.AcquiredAt.Format(time.RFC3339))
	}
	return ErrLocked
}

func newInfo() Info {
	host, _ := os.Hostname()
	return Info{
		Token:      uuid.NewString(),
		Host:       host,
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	}
}

var _ Locker = (*FileLocker)(nil)
