package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const changeDebounce = 200 * time.Millisecond

// Watch signals Changes when the database is modified by another process.
// It runs until ctx is done or the store is closed.
func (s *Store) Watch(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.stop != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})
	go s.watchLoop(ctx, w)
	return nil
}

// isDBFile matches the database and its WAL and journal files.
func (s *Store) isDBFile(name string) bool {
	base := filepath.Base(s.path)
	n := filepath.Base(name)
	return n == base || strings.HasPrefix(n, base+"-")
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer close(s.done)
	defer w.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !s.isDBFile(ev.Name) || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(changeDebounce, s.signal)
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Store) stopWatch() {
	s.watchMu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.watchMu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}
