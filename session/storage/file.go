package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/rs/zerolog/log"
)

// FileStore keeps one file per key in a directory shared by several
// processes. Each process opens its own FileStore; fsnotify turns writes by
// the others into StorageEvents. Writes made through this FileStore are not
// echoed back to its own watchers, and a rewrite with an unchanged value
// produces no event.
type FileStore struct {
	dir string

	mu       sync.Mutex
	known    map[string]string // last value seen or written, per key
	handlers map[uint64]func(session.StorageEvent)
	nextID   uint64
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ session.DurableStore = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[storage NewFileStore] %w: %v", errors.ErrStoreUnavailable, err)
	}
	return &FileStore{
		dir:      dir,
		known:    make(map[string]string),
		handlers: make(map[uint64]func(session.StorageEvent)),
	}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("[storage FileStore] invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

func (s *FileStore) Get(key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("[storage FileStore Get] %w: %v", errors.ErrStoreUnavailable, err)
	}
	return string(b), nil
}

// Set writes through a temporary file and a rename so readers never see a
// partial value.
func (s *FileStore) Set(key, value string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, ".tmp-"+uuid.New().String())
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("[storage FileStore Set] %w: %v", errors.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("[storage FileStore Set] %w: %v", errors.ErrStoreUnavailable, err)
	}
	s.known[key] = value
	return nil
}

func (s *FileStore) Remove(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[storage FileStore Remove] %w: %v", errors.ErrStoreUnavailable, err)
	}
	delete(s.known, key)
	return nil
}

// Watch starts the fsnotify watcher on first use. If the watcher cannot be
// started the handler is never called; the store keeps working for reads
// and writes.
func (s *FileStore) Watch(fn func(session.StorageEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		if err := s.startLocked(); err != nil {
			log.Warn().Err(err).Str("dir", s.dir).Msg("file store change events disabled")
		}
	}
	s.nextID++
	id := s.nextID
	s.handlers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *FileStore) startLocked() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}
	// Seed known values so the first event after startup is compared
	// against what was on disk, not against nothing.
	entries, _ := os.ReadDir(s.dir)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := s.known[e.Name()]; ok {
			continue
		}
		if b, err := os.ReadFile(filepath.Join(s.dir, e.Name())); err == nil {
			s.known[e.Name()] = string(b)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watcher = w
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.processEvents(ctx, w, s.done)
	return nil
}

func (s *FileStore) processEvents(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			key := filepath.Base(event.Name)
			if strings.HasPrefix(key, ".") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.dispatch(key)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Str("dir", s.dir).Msg("file store watcher error")
		}
	}
}

// dispatch reads the current value of key and notifies handlers if it
// differs from the last value this store knew about.
func (s *FileStore) dispatch(key string) {
	b, err := os.ReadFile(filepath.Join(s.dir, key))
	removed := os.IsNotExist(err)
	if err != nil && !removed {
		return
	}
	value := string(b)

	s.mu.Lock()
	old, existed := s.known[key]
	if removed {
		if !existed {
			s.mu.Unlock()
			return
		}
		delete(s.known, key)
	} else {
		if existed && old == value {
			s.mu.Unlock()
			return
		}
		s.known[key] = value
	}
	handlers := make([]func(session.StorageEvent), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	ev := session.StorageEvent{Key: key, OldValue: old, NewValue: value, Removed: removed}
	for _, h := range handlers {
		h(ev)
	}
}

// Close stops the watcher goroutine.
func (s *FileStore) Close() error {
	s.mu.Lock()
	w, cancel, done := s.watcher, s.cancel, s.done
	s.watcher, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	cancel()
	err := w.Close()
	<-done
	return err
}
