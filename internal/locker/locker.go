// Package locker serializes independent shell processes against one
// daemon with an advisory file lock. The dispatch core never sees it;
// lockless mode simply swaps in the no-op implementation.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Locker guards a shell run.
type Locker interface {
	Acquire(ctx context.Context) error
	Release() error
}

// File is a flock-backed Locker.
type File struct {
	path string
	lock *flock.Flock
}

func NewFile(path string) *File {
	return &File{path: path, lock: flock.New(path)}
}

func (f *File) Acquire(ctx context.Context) error {
	ok, err := f.lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return fmt.Errorf("locker: acquire %s: %w", f.path, err)
	}
	if !ok {
		return fmt.Errorf("locker: %s already held", f.path)
	}
	return nil
}

func (f *File) Release() error {
	return f.lock.Unlock()
}

// Nop is the lockless-mode Locker.
type Nop struct{}

func (Nop) Acquire(context.Context) error { return nil }
func (Nop) Release() error                { return nil }
