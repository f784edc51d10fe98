// Package locker hands out named exclusive locks. Inside a process a lock is a
// one-slot semaphore per name; when a directory is configured the holder also
// takes an flock on <dir>/<name>.lk so separate processes sharing the same
// data directory exclude each other too.
package locker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const DefaultRetryDelay = 10 * time.Millisecond

type Releaser interface {
	Release() error
}

type Manager struct {
	dir        string
	retryDelay time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// New returns a Manager. An empty dir keeps locking in-process only.
func New(dir string, retryDelay time.Duration) *Manager {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Manager{
		dir:        dir,
		retryDelay: retryDelay,
		slots:      make(map[string]chan struct{}),
	}
}

// Acquire blocks until name is free or ctx ends.
func (m *Manager) Acquire(ctx context.Context, name string) (Releaser, error) {
	slot := m.slot(name)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h := &Handle{slot: slot}
	if m.dir == "" {
		return h, nil
	}

	fl, err := m.lockFile(ctx, name)
	if err != nil {
		<-slot
		return nil, err
	}
	h.file = fl
	return h, nil
}

func (m *Manager) slot(name string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[name] = s
	}
	return s
}

func (m *Manager) lockFile(ctx context.Context, name string) (*flock.Flock, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(m.dir, name+".lk"))
	ok, err := fl.TryLockContext(ctx, m.retryDelay)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", name)
	}
	return fl, nil
}

type Handle struct {
	slot chan struct{}
	file *flock.Flock
	once sync.Once
}

// Release is safe to call more than once; only the first call has effect.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() {
		if h.file != nil {
			err = h.file.Unlock()
		}
		<-h.slot
	})
	return err
}
