package config

import (
	"context"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/scrubgate-ai/scrubgate/internal/redact"
)

// Snapshot holds the current config and swaps it atomically on reload.
// Readers take one snapshot per query, so a reload between queries never
// mixes old and new policy values within a single request.
type Snapshot struct {
	v atomic.Pointer[Config]
}

// NewSnapshot seeds a snapshot with the initial config.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.v.Store(cfg)
	return s
}

// Load returns the current config.
func (s *Snapshot) Load() *Config {
	return s.v.Load()
}

// Watch reloads the config file into the snapshot whenever it changes on
// disk. A reload that fails to load or validate is logged and discarded; the
// previous snapshot stays current. Watch returns once the watcher is
// installed and stops when ctx is cancelled.
func Watch(ctx context.Context, path string, snap *Snapshot) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					redact.Logf("config reload failed: %v", err)
					continue
				}
				if err := Validate(cfg); err != nil {
					redact.Logf("config reload rejected: %v", err)
					continue
				}
				snap.v.Store(cfg)
				redact.Logf("config reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				redact.Logf("config watcher error: %v", err)
			}
		}
	}()

	return nil
}
