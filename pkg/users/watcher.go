package users

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

type fileWatcher struct {
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	timerMu  sync.Mutex
	timer    *time.Timer
}

// Watch reloads the registry whenever the file changes on disk. The parent
// directory is watched so that atomic replacements are seen.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return fmt.Errorf("users watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch users directory: %w", err)
	}

	fw := &fileWatcher{watcher: watcher, stopCh: make(chan struct{})}
	s.watcher = fw
	go s.watchLoop(fw)

	s.logger.Info().Str("path", s.path).Msg("Watching user registry")
	return nil
}

// Close stops the watcher, if any
func (s *Store) Close() error {
	s.mu.Lock()
	fw := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if fw == nil {
		return nil
	}

	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
		fw.timerMu.Lock()
		if fw.timer != nil {
			fw.timer.Stop()
		}
		fw.timerMu.Unlock()
		err = fw.watcher.Close()
	})
	return err
}

func (s *Store) watchLoop(fw *fileWatcher) {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				s.logger.Debug().Str("op", event.Op.String()).Msg("User registry change detected")
				s.scheduleReload(fw)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("User registry watcher error")

		case <-fw.stopCh:
			return
		}
	}
}

// scheduleReload debounces reloads across bursts of events
func (s *Store) scheduleReload(fw *fileWatcher) {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(reloadDebounce, func() {
		select {
		case <-fw.stopCh:
			return
		default:
		}
		if err := s.Reload(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to reload user registry")
		}
	})
}
