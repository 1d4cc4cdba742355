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
	"sync"
	"time"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	EventState         EventKind = iota // State changed; see Event.State
	EventReady                          // Bootstrap reached 100%
	EventLine                           // A line of daemon output
	EventProgress                       // Bootstrap percentage
	EventRestarting                     // About to restart the daemon
	EventClose                          // The daemon exited
	EventError                          // See Event.Err
	EventHiddenService                  // Hostname discovered
	EventPortsPrepared                  // Config resolved its ports
	numEventKinds
)

var eventNames = [...]string{
	EventState:         "state",
	EventReady:         "ready",
	EventLine:          "line",
	EventProgress:      "progress",
	EventRestarting:    "restarting",
	EventClose:         "close",
	EventError:         "error",
	EventHiddenService: "hidden-service",
	EventPortsPrepared: "ports-prepared",
}

func (k EventKind) String() string {
	if k >= 0 && k < numEventKinds {
		return eventNames[k]
	}
	return "unknown"
}

// Event is delivered to observers.  Only the fields relevant to Kind are
// set.
type Event struct {
	Kind     EventKind
	Name     string // Name of the supervisor (or config) raising it
	Time     time.Time
	State    State
	Line     string
	Progress int
	Err      *Error
	Service  *HiddenService
	Ports    []int
}

// Observer receives events.  Observers run on their own goroutine, one per
// subscription, and receive events in the order they were raised.
type Observer func(Event)

type observer struct {
	fn     Observer
	mask   uint32
	queue  []Event
	closed bool
	mx     sync.Mutex
	cv     *sync.Cond
	n      *notifier
}

func (o *observer) push(ev Event) {
	o.mx.Lock()
	if !o.closed {
		o.queue = append(o.queue, ev)
		o.cv.Signal()
	}
	o.mx.Unlock()
}

func (o *observer) close() {
	o.mx.Lock()
	o.closed = true
	o.queue = nil
	o.cv.Broadcast()
	o.mx.Unlock()
}

func (o *observer) run() {
	for {
		o.mx.Lock()
		for len(o.queue) == 0 && !o.closed {
			o.cv.Wait()
		}
		if o.closed {
			o.mx.Unlock()
			return
		}
		ev := o.queue[0]
		o.queue[0] = Event{}
		o.queue = o.queue[1:]
		o.mx.Unlock()
		o.deliver(ev)
	}
}

func (o *observer) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			o.n.logf("Observer panicked on %s event: %v", ev.Kind, r)
		}
	}()
	o.fn(ev)
}

// notifier fans events out to observers.  Raising an event never blocks
// on an observer.
type notifier struct {
	name      string
	logger    *log.Logger
	observers map[int]*observer
	next      int
	mx        sync.Mutex
}

func newNotifier(name string) *notifier {
	return &notifier{
		name:      name,
		observers: make(map[int]*observer),
	}
}

func (n *notifier) logf(format string, v ...interface{}) {
	n.mx.Lock()
	l := n.logger
	n.mx.Unlock()
	if l != nil {
		l.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

func (n *notifier) setLogger(l *log.Logger) {
	n.mx.Lock()
	n.logger = l
	n.mx.Unlock()
}

func (n *notifier) subscribe(fn Observer, kinds ...EventKind) int {
	o := &observer{fn: fn, n: n}
	o.cv = sync.NewCond(&o.mx)
	if len(kinds) == 0 {
		o.mask = ^uint32(0)
	}
	for _, k := range kinds {
		o.mask |= 1 << uint(k)
	}
	n.mx.Lock()
	n.next++
	id := n.next
	n.observers[id] = o
	n.mx.Unlock()
	go o.run()
	return id
}

func (n *notifier) unsubscribe(id int) {
	n.mx.Lock()
	o, ok := n.observers[id]
	delete(n.observers, id)
	n.mx.Unlock()
	if ok {
		o.close()
	}
}

func (n *notifier) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	n.mx.Lock()
	if ev.Name == "" {
		ev.Name = n.name
	}
	for _, o := range n.observers {
		if o.mask&(1<<uint(ev.Kind)) != 0 {
			o.push(ev)
		}
	}
	n.mx.Unlock()
}
