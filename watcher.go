// Copyright 2026 The Torvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package torvisor

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gdamore/torvisor/onion"
)

const (
	// HostnameFile is the file the daemon writes a service's address to.
	HostnameFile = "hostname"

	// DefaultPollInterval gives roughly fifty polls a second.
	DefaultPollInterval = 20 * time.Millisecond
)

// HostnameWatcher waits for the daemon to publish hidden service
// hostnames.  It polls every service that has no hostname yet, on a fixed
// interval, for as long as it runs; it keeps running whatever the state of
// the daemon.  When the platform supports it, file system notifications
// trigger an early poll.
type HostnameWatcher struct {
	cfg      *Config
	fs       FileSystem
	events   *notifier
	fsw      *fsnotify.Watcher
	interval atomic.Int64
	cycles   atomic.Int64
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newHostnameWatcher(c *Config, fs FileSystem, events *notifier) *HostnameWatcher {
	w := &HostnameWatcher{
		cfg:    c,
		fs:     fs,
		events: events,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.interval.Store(int64(DefaultPollInterval))
	return w
}

func (w *HostnameWatcher) start() {
	if fsw, e := fsnotify.NewWatcher(); e == nil {
		w.fsw = fsw
		go w.notifications()
	}
	go w.run()
}

// Interval is the time between polls.
func (w *HostnameWatcher) Interval() time.Duration {
	return time.Duration(w.interval.Load())
}

// SetInterval changes the time between polls.  It must be positive.
func (w *HostnameWatcher) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrBadPropValue
	}
	w.interval.Store(int64(d))
	return nil
}

// Cycles is the number of polls completed so far.
func (w *HostnameWatcher) Cycles() int64 {
	return w.cycles.Load()
}

// Stop ends the watcher.  It is safe to call more than once.
func (w *HostnameWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
	<-w.done
}

func (w *HostnameWatcher) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// track is called when a service is added.
func (w *HostnameWatcher) track(hs *HiddenService) {
	if w.fsw != nil {
		// The directory may not exist yet, in which case polling
		// alone will find the hostname.
		w.fsw.Add(hs.Directory())
	}
	w.poke()
}

func (w *HostnameWatcher) notifications() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != HostnameFile {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.poke()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.stop:
			return
		}
	}
}

func (w *HostnameWatcher) run() {
	defer close(w.done)
	for {
		w.poll()
		t := time.NewTimer(w.Interval())
		select {
		case <-w.stop:
			t.Stop()
			return
		case <-w.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

func (w *HostnameWatcher) poll() {
	for _, hs := range w.cfg.HiddenServices() {
		if hs.Hostname() != "" {
			continue
		}
		text, ok := w.fs.ReadText(filepath.Join(hs.Directory(), HostnameFile))
		if !ok {
			continue
		}
		name := strings.TrimSpace(text)
		if !hs.setHostname(name) {
			continue
		}
		if !onion.Valid(name) {
			w.events.logf("Hidden service %s has unexpected hostname %q",
				hs.Directory(), name)
		}
		if w.fsw != nil {
			w.fsw.Remove(hs.Directory())
		}
		w.events.emit(Event{Kind: EventHiddenService, Service: hs})
	}
	w.cycles.Add(1)
}
