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
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Manager keeps a set of named supervisors.  It tracks a serial number
// that changes whenever a supervisor changes state or the set changes, so
// that clients can wait for something to happen.  Supervisor log output
// is copied into a Log shared by all of them.
type Manager struct {
	name       string
	supers     map[string]*Supervisor
	subs       map[string]int
	logger     *log.Logger
	log        *Log
	mlog       *MultiLogger
	serial     int64
	listSerial int64
	createTime time.Time
	updateTime time.Time
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool
}

// ManagerInfo is a consistent snapshot of the Manager itself.
type ManagerInfo struct {
	Name        string    `json:"name"`
	Serial      int64     `json:"serial,string"`
	Supervisors int       `json:"supervisors"`
	UpdateTime  time.Time `json:"updateTime"`
	CreateTime  time.Time `json:"createTime"`
}

func (m *Manager) lock() {
	m.mx.Lock()
}

func (m *Manager) unlock() {
	m.mx.Unlock()
}

// wakeUp must be called with the lock held, or waiters can miss the
// updated serial.
func (m *Manager) wakeUp() {
	for cv := range m.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers.  Call with
// lock held.
func (m *Manager) bumpSerial() int64 {
	m.updateTime = time.Now()
	m.serial++
	m.wakeUp()
	return m.serial
}

// watchSerial waits for *src to differ from old, or for expire to pass,
// and returns the current value.  Zero for expire just polls.
func (m *Manager) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&m.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			m.lock()
			expired = true
			cv.Broadcast()
			m.unlock()
		})
	} else {
		expired = true
	}

	m.lock()
	m.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(m.cvs, cv)
	m.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// WatchSerial waits for a change in the global serial number.
func (m *Manager) WatchSerial(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.serial, expire)
}

// WatchSupervisors waits for a supervisor to be added or removed.
func (m *Manager) WatchSupervisors(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.listSerial, expire)
}

// Serial is incremented on any state change of any supervisor.
func (m *Manager) Serial() int64 {
	m.lock()
	defer m.unlock()
	return m.serial
}

// ListSerial changes whenever a supervisor is added or removed.
func (m *Manager) ListSerial() int64 {
	m.lock()
	defer m.unlock()
	return m.listSerial
}

// Name returns the name the manager was created with.
func (m *Manager) Name() string {
	return m.name
}

// GetInfo returns top-level information about the Manager.
func (m *Manager) GetInfo() *ManagerInfo {
	m.lock()
	defer m.unlock()
	return &ManagerInfo{
		Name:        m.name,
		Serial:      m.serial,
		Supervisors: len(m.supers),
		CreateTime:  m.createTime,
		UpdateTime:  m.updateTime,
	}
}

// changed is subscribed to the state events of every supervisor.
func (m *Manager) changed(Event) {
	m.lock()
	m.bumpSerial()
	m.unlock()
}

// Add registers a supervisor.  Names must be unique.
func (m *Manager) Add(s *Supervisor) error {
	m.lock()
	defer m.unlock()
	if _, ok := m.supers[s.Name()]; ok {
		return ErrConflict
	}
	m.supers[s.Name()] = s
	m.subs[s.Name()] = s.Subscribe(m.changed, EventState, EventHiddenService)
	// The supervisor logs through us from now on.
	s.SetProperty(PropLogger, m.mlog.Logger())
	m.listSerial = m.bumpSerial()
	return nil
}

// Remove shuts the named supervisor down and forgets it.
func (m *Manager) Remove(name string) error {
	m.lock()
	s, ok := m.supers[name]
	if !ok {
		m.unlock()
		return ErrNoSupervisor
	}
	delete(m.supers, name)
	s.Unsubscribe(m.subs[name])
	delete(m.subs, name)
	m.listSerial = m.bumpSerial()
	m.unlock()

	s.Shutdown()
	return nil
}

// Get finds a supervisor by name.
func (m *Manager) Get(name string) (*Supervisor, error) {
	m.lock()
	defer m.unlock()
	if s, ok := m.supers[name]; ok {
		return s, nil
	}
	return nil, ErrNoSupervisor
}

// Supervisors returns the supervisors sorted by name.
func (m *Manager) Supervisors() []*Supervisor {
	m.lock()
	rv := make([]*Supervisor, 0, len(m.supers))
	for _, s := range m.supers {
		rv = append(rv, s)
	}
	m.unlock()
	sort.Slice(rv, func(i, j int) bool {
		return rv[i].Name() < rv[j].Name()
	})
	return rv
}

// RunAll starts every supervisor that is not already running.
func (m *Manager) RunAll() {
	for _, s := range m.Supervisors() {
		if e := s.Run(); e != nil && e != ErrAlreadyRunning {
			m.logf("Failed to run %s: %v", s.Name(), e)
		}
	}
}

// Info returns a snapshot of every supervisor, sorted by name.
func (m *Manager) Info() []*RunInfo {
	var infos []*RunInfo
	for _, s := range m.Supervisors() {
		infos = append(infos, s.Info())
	}
	return infos
}

// SetLogger replaces the default stderr logger.
func (m *Manager) SetLogger(l *log.Logger) {
	m.lock()
	defer m.unlock()
	if m.logger != nil {
		m.mlog.DelLogger(m.logger)
	}
	m.logger = l
	if l != nil {
		m.mlog.AddLogger(l)
	}
}

func (m *Manager) logf(format string, v ...interface{}) {
	m.mlog.Logger().Printf(format, v...)
}

// Shutdown stops every supervisor for good, and waits for them, or for
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	supers := m.Supervisors()
	for _, s := range supers {
		s.Kill(false)
	}
	for _, s := range supers {
		if e := s.Wait(ctx); e != nil {
			return e
		}
		s.Config().Close()
	}
	m.logf("*** Torvisor shut down: %s ***", m.name)
	return nil
}

// Log is shared by every supervisor in the manager.
func (m *Manager) Log() *Log {
	return m.log
}

// GetLog returns the shared log records newer than lastid.
func (m *Manager) GetLog(lastid int64) ([]LogRecord, int64) {
	return m.log.Records(lastid)
}

// WatchLog waits for a log record newer than old.
func (m *Manager) WatchLog(old int64, expire time.Duration) int64 {
	return m.log.Watch(old, expire)
}

func NewManager(name string) *Manager {
	if name == "" {
		name = "torvisor"
	}
	// The serial starts at the current time in nanoseconds, so that a
	// restarted server does not hand out serials a client has seen.
	m := &Manager{name: name, serial: time.Now().UnixNano()}
	m.listSerial = m.serial
	m.supers = make(map[string]*Supervisor)
	m.subs = make(map[string]int)
	m.cvs = make(map[*sync.Cond]bool)
	m.createTime = time.Now()
	m.updateTime = m.createTime
	m.mlog = NewMultiLogger()
	m.log = NewLog(MaxLogRecords)
	m.mlog.AddLogger(log.New(m.log, "", 0))
	m.logger = log.New(os.Stderr, "", log.LstdFlags)
	m.mlog.AddLogger(m.logger)
	return m
}
