// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	fsnotify "gopkg.in/fsnotify.v1"
)

// Store owns the single process-wide Config record: loading, validating,
// atomically persisting, and serving it to every other component. All
// readers take the same lock, copy the fields they need, and release it
// before doing any work of their own, per the concurrency model.
type Store struct {
	mu     sync.Mutex
	path   string
	cur    Config
	loadOK bool

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup
}

// Open loads path, synthesizing defaults if it does not exist. A
// malformed file is never overwritten: the in-memory defaults are kept,
// and the error is returned so the caller can log it, but the corrupt
// file is left for the operator to recover.
func Open(path string) (*Store, error) {
	s := &Store{path: path, stop: make(chan struct{})}
	cfg, err := load(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = Default()
			cfg.DeviceID = uuid.NewString()
			s.cur = cfg
			s.loadOK = true
			if werr := atomicWrite(path, cfg); werr != nil {
				return s, apiscommon.Wrap(apiscommon.KindIOTransient, "config.Open", werr)
			}
			return s, nil
		}
		// Corrupt or unreadable: retain safe in-memory defaults, report the
		// corruption, but do not touch the file on disk.
		s.cur = Default()
		s.loadOK = false
		return s, apiscommon.Wrap(apiscommon.KindCorruption, "config.Open", err)
	}
	s.cur = cfg
	s.loadOK = true
	return s, nil
}

func load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// atomicWrite writes cfg to path via a temp file in the same directory
// followed by rename, so the on-disk record is always either the
// previous complete record or the new one, never a partial document.
func atomicWrite(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Get returns a snapshot of the current configuration. The returned
// value is a copy: mutating it has no effect on the store, and the
// store's own subsequent mutations have no effect on it.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone()
}

// Update validates u applied to the current config and, if valid,
// installs and persists the result. On validation failure the prior
// value is left completely intact, both in memory and on disk.
func (s *Store) Update(u Update) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur.Apply(u)
	if err := next.Validate(); err != nil {
		return s.cur.Clone(), err
	}
	s.cur = next
	if err := atomicWrite(s.path, s.cur); err != nil {
		return s.cur.Clone(), apiscommon.Wrap(apiscommon.KindIOTransient, "config.Update", err)
	}
	return s.cur.Clone(), nil
}

// MarkSetupComplete clears needs_setup and persists the change.
func (s *Store) MarkSetupComplete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.NeedsSetup = false
	return s.saveLocked()
}

// SetArmed sets the armed flag and persists the change.
func (s *Store) SetArmed(armed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Armed = armed
	return s.saveLocked()
}

// Save persists the current in-memory record unconditionally.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := atomicWrite(s.path, s.cur); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, "config.Save", err)
	}
	return nil
}

// WatchForExternalEdits starts a background fsnotify watch on the config
// file's directory so a hand-edited config.json (SD-card swap, SFTP
// upload) is picked up without a process restart. A re-edit that fails
// validation is logged and ignored; the in-memory value is unaffected.
func (s *Store) WatchForExternalEdits() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, "config.WatchForExternalEdits", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return apiscommon.Wrap(apiscommon.KindIOTransient, "config.WatchForExternalEdits", err)
	}
	s.watcher = w
	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}

func (s *Store) reload() {
	cfg, err := load(s.path)
	if err != nil {
		log.Printf("config: external edit unreadable, ignoring: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("config: external edit invalid, ignoring: %v", err)
		return
	}
	s.mu.Lock()
	s.cur = cfg
	s.mu.Unlock()
}

// Close stops the background watcher, if any, and waits for it to exit.
func (s *Store) Close() error {
	close(s.stop)
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.wg.Wait()
	return nil
}
