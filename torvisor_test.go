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
	"log"
	"path"
	"strings"
	"sync"
	"testing"
	"time"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

func setTestLogger(t *testing.T, s *Supervisor) {
	s.SetProperty(PropLogger, log.New(&testLog{t: t}, "", log.Ltime))
}

// memFS is an in-memory FileSystem.
type memFS struct {
	files     map[string]string
	dirs      map[string]bool
	failMkdir bool
	failWrite bool
	writes    int
	sync.Mutex
}

func newMemFS() *memFS {
	return &memFS{
		files: make(map[string]string),
		dirs:  map[string]bool{"/": true, ".": true},
	}
}

func (fs *memFS) MakeDirAll(dir string) bool {
	fs.Lock()
	defer fs.Unlock()
	if fs.failMkdir || dir == "" {
		return false
	}
	for d := path.Clean(dir); !fs.dirs[d]; d = path.Dir(d) {
		fs.dirs[d] = true
	}
	return true
}

func (fs *memFS) FileExists(p string) bool {
	fs.Lock()
	defer fs.Unlock()
	_, ok := fs.files[path.Clean(p)]
	return ok
}

func (fs *memFS) DirExists(p string) bool {
	fs.Lock()
	defer fs.Unlock()
	return fs.dirs[path.Clean(p)]
}

func (fs *memFS) ReadText(p string) (string, bool) {
	fs.Lock()
	defer fs.Unlock()
	text, ok := fs.files[path.Clean(p)]
	return text, ok
}

func (fs *memFS) WriteText(p string, text string) bool {
	fs.Lock()
	defer fs.Unlock()
	if fs.failWrite {
		return false
	}
	fs.writes++
	fs.files[path.Clean(p)] = text
	return true
}

func (fs *memFS) put(p string, text string) {
	fs.Lock()
	fs.files[path.Clean(p)] = text
	fs.Unlock()
}

// seqAlloc hands out ports from base upward, honoring exclusions, and
// counts calls.  With zero set it has no ports at all.
type seqAlloc struct {
	base  int
	zero  bool
	calls int
	args  [][]int
	sync.Mutex
}

func (a *seqAlloc) Allocate(start int, exclude []int) int {
	a.Lock()
	defer a.Unlock()
	a.calls++
	a.args = append(a.args, append([]int{start}, exclude...))
	if a.zero {
		return 0
	}
	if start < a.base {
		start = a.base
	}
	return FindOpenPort(start, DefaultPortEnd, exclude)
}

func (a *seqAlloc) count() int {
	a.Lock()
	defer a.Unlock()
	return a.calls
}

// recorder collects events delivered to an observer.
type recorder struct {
	evs []Event
	cv  *sync.Cond
	mx  sync.Mutex
}

func newRecorder() *recorder {
	r := &recorder{}
	r.cv = sync.NewCond(&r.mx)
	return r
}

func (r *recorder) observe(ev Event) {
	r.mx.Lock()
	r.evs = append(r.evs, ev)
	r.cv.Broadcast()
	r.mx.Unlock()
}

func (r *recorder) events() []Event {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Event{}, r.evs...)
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) of(kind EventKind) []Event {
	var evs []Event
	for _, ev := range r.events() {
		if ev.Kind == kind {
			evs = append(evs, ev)
		}
	}
	return evs
}

// waitFor waits until there are at least n events of kind.
func (r *recorder) waitFor(kind EventKind, n int, d time.Duration) bool {
	expired := false
	timer := time.AfterFunc(d, func() {
		r.mx.Lock()
		expired = true
		r.cv.Broadcast()
		r.mx.Unlock()
	})
	defer timer.Stop()

	r.mx.Lock()
	defer r.mx.Unlock()
	for {
		got := 0
		for _, ev := range r.evs {
			if ev.Kind == kind {
				got++
			}
		}
		if got >= n {
			return true
		}
		if expired {
			return false
		}
		r.cv.Wait()
	}
}

// waitState waits for the supervisor to reach a state.
func waitState(s *Supervisor, st State, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if s.State() == st {
			return true
		}
		time.Sleep(time.Millisecond * 5)
	}
	return s.State() == st
}
