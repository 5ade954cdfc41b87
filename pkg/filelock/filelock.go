// Package filelock implements an advisory lock shared between processes: the
// lock is held while the lock file exists.
package filelock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLockTimeout = errors.New("lock timeout")
	// ErrLockLost is returned by Release when the lock file now belongs to
	// another holder, which happens after a stale recovery took it over.
	ErrLockLost = errors.New("lock taken over by another holder")
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryInterval = 50 * time.Millisecond
	DefaultStaleAfter    = 60 * time.Second
)

// Options tunes acquisition. Zero values fall back to the defaults; a
// negative StaleAfter disables stale lock recovery.
type Options struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	StaleAfter    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.StaleAfter == 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	return o
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	path  string
	token []byte
}

// Acquire spins until the lock file can be created exclusively, the timeout
// elapses (ErrLockTimeout) or ctx is done.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			token := []byte(fmt.Sprintf("%d %s %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano), uuid.NewString()))
			_, werr := f.Write(token)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file %s: %w", path, errors.Join(werr, cerr))
			}
			return &Lock{path: path, token: token}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
		}

		if opts.StaleAfter > 0 && removeStale(path, opts.StaleAfter) {
			continue
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s held for more than %s", ErrLockTimeout, path, opts.Timeout)
		}

		timer := time.NewTimer(opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// removeStale clears a lock file left behind by a holder that died. The file
// is renamed aside first so only one waiter can claim a given stale lock.
func removeStale(path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Released between our create attempt and the stat.
		return errors.Is(err, os.ErrNotExist)
	}
	if time.Since(info.ModTime()) < staleAfter {
		return false
	}

	aside := fmt.Sprintf("%s.stale-%d-%s", path, os.Getpid(), uuid.NewString())
	if err := os.Rename(path, aside); err != nil {
		// Another waiter got there first, or the holder released it.
		return errors.Is(err, os.ErrNotExist)
	}
	info, err = os.Stat(aside)
	if err == nil && time.Since(info.ModTime()) < staleAfter {
		// A fresh lock replaced the stale one before the rename: put it back.
		_ = os.Link(aside, path)
		_ = os.Remove(aside)
		return false
	}
	_ = os.Remove(aside)
	return true
}

// Release removes the lock file if it is still ours. Releasing a lock whose
// file is already gone is not an error; a file owned by another holder is
// left alone and reported as ErrLockLost.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	if !bytes.Equal(data, l.token) {
		return fmt.Errorf("%w: %s", ErrLockLost, l.path)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock. The lock is released on every
// exit path, including a panic inside fn.
func WithLock(ctx context.Context, path string, opts Options, fn func() error) (err error) {
	lock, err := Acquire(ctx, path, opts)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}
