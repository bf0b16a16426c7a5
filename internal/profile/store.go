package profile

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Store holds the active profile and swaps it when the backing file changes.
type Store struct {
	path   string
	logger logrus.FieldLogger

	mu       sync.RWMutex
	current  *Profile
	revision uint64
}

// NewStore loads path, or uses Default when path is empty.
func NewStore(path string, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{path: path, logger: logger, current: Default(), revision: 1}
	if path == "" {
		return s, nil
	}
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.current = p
	return s, nil
}

// Current returns the active profile. Callers must not modify it.
func (s *Store) Current() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Revision increases every time a new profile is installed.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Set installs p as the active profile.
func (s *Store) Set(p *Profile) {
	s.mu.Lock()
	s.current = p
	s.revision++
	s.mu.Unlock()
}

// Reload re-reads the backing file. A broken file keeps the previous profile.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := Load(s.path)
	if err != nil {
		return err
	}
	s.Set(p)
	return nil
}

// Watch reloads the profile on file changes until ctx is done. The parent
// directory is watched so editors that replace the file by rename are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(s.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.WithError(err).WithField("path", s.path).Warn("profile reload failed, keeping previous profile")
					continue
				}
				s.logger.WithFields(logrus.Fields{"path": s.path, "revision": s.Revision()}).Info("profile reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("profile watcher error")
			}
		}
	}()
	return nil
}
