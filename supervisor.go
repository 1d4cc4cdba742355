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
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// ProgressMarker precedes the bootstrap percentage in daemon output,
	// as in "Bootstrapped 45% (requesting_descriptors): ...".
	ProgressMarker = "rapped "

	DefaultRestartDelay = 1025 * time.Millisecond
)

// Supervisor runs the daemon, and runs it again when it exits if it is
// persistent.  A Supervisor owns its Config, which is written out before
// every start.
//
// States advance as described for State.  Every transition, every line
// of output and every bootstrap percentage is reported as an Event.
type Supervisor struct {
	name    string
	config  *Config
	fs      FileSystem
	events  *notifier
	mlog    *MultiLogger
	logger  *log.Logger
	out     *Log
	metrics *metrics

	state    atomic.Int32
	persist  atomic.Bool
	progress atomic.Int32
	pid      atomic.Int64

	exe          string
	configFile   string
	makeDirs     bool
	restartDelay time.Duration
	cmd          *exec.Cmd
	runID        string
	running      bool
	stopping     bool
	done         chan struct{}
	starts       int
	restarts     int
	stamp        time.Time
	lock         sync.Mutex
}

// NewSupervisor returns a supervisor for the daemon at exe, which will be
// configured through configFile.  It is persistent by default.
func NewSupervisor(name, exe, configFile string) *Supervisor {
	return NewSupervisorWith(name, exe, configFile, OSFileSystem{}, NewTCPPortAllocator())
}

// NewSupervisorWith is NewSupervisor with explicit collaborators.
func NewSupervisorWith(name, exe, configFile string, fs FileSystem, alloc PortAllocator) *Supervisor {
	if name == "" {
		name = "tor"
	}
	s := &Supervisor{
		name:         name,
		fs:           fs,
		exe:          exe,
		configFile:   configFile,
		makeDirs:     true,
		restartDelay: DefaultRestartDelay,
		stamp:        time.Now(),
		events:       newNotifier(name),
		mlog:         NewMultiLogger(),
		out:          NewLog(MaxLogRecords),
		metrics:      newMetrics(name),
	}
	s.persist.Store(true)
	s.mlog.Logger().SetPrefix("[" + name + "] ")
	s.mlog.AddLogger(log.New(s.out, "", 0))
	s.logger = log.New(os.Stderr, "", log.LstdFlags)
	s.mlog.AddLogger(s.logger)
	s.events.setLogger(s.mlog.Logger())
	s.config = newConfig(fs, alloc, s.events)
	s.events.subscribe(s.published, EventHiddenService)
	return s
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	s.mlog.Logger().Printf(format, v...)
}

// Name is the name given at creation.
func (s *Supervisor) Name() string {
	return s.name
}

// Config is the daemon configuration.
func (s *Supervisor) Config() *Config {
	return s.config
}

// Log holds recent daemon output and supervisor messages.
func (s *Supervisor) Log() *Log {
	return s.out
}

// Collectors returns the Prometheus metrics for this supervisor.
func (s *Supervisor) Collectors() []prometheus.Collector {
	return s.metrics.collectors()
}

// State is the current state.  Until Run is called it is StateError.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// StateText is the name of the current state.
func (s *Supervisor) StateText() string {
	return s.State().String()
}

// Pid is the process id of the daemon, or 0 if it is not running.
func (s *Supervisor) Pid() int {
	return int(s.pid.Load())
}

// Progress is the last bootstrap percentage reported by the daemon.
func (s *Supervisor) Progress() int {
	return int(s.progress.Load())
}

// Persist reports whether the daemon will be restarted when it exits.
func (s *Supervisor) Persist() bool {
	return s.persist.Load()
}

// Running is true while the supervision loop is active.
func (s *Supervisor) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.running
}

// RunID identifies the current (or last) daemon process.
func (s *Supervisor) RunID() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.runID
}

// Subscribe registers an observer.  With no kinds, the observer receives
// every event.  It returns an id for Unsubscribe.
func (s *Supervisor) Subscribe(fn Observer, kinds ...EventKind) int {
	return s.events.subscribe(fn, kinds...)
}

func (s *Supervisor) Unsubscribe(id int) {
	s.events.unsubscribe(id)
}

func (s *Supervisor) emit(kind EventKind) {
	s.events.emit(Event{Kind: kind})
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.lock.Lock()
	s.stamp = time.Now()
	s.lock.Unlock()
	s.metrics.state.Set(float64(st))
	s.events.emit(Event{Kind: EventState, State: st})
}

func (s *Supervisor) reportError(kind ErrorKind, context string, err error) {
	e := &Error{Kind: kind, Context: context, Err: err}
	switch kind {
	case ErrorSpawn:
		s.metrics.spawnFailures.Inc()
	case ErrorPathMissing:
		s.metrics.pathErrors.Inc()
	}
	s.logf("Error: %v", e)
	s.events.emit(Event{Kind: EventError, Err: e})
}

// published is subscribed to EventHiddenService.
func (s *Supervisor) published(ev Event) {
	s.metrics.hostnames.Inc()
	s.logf("Hidden service %s published as %s",
		ev.Service.Directory(), ev.Service.Hostname())
}

// Run starts supervising in the background and returns at once.  It
// returns ErrAlreadyRunning if the supervision loop is still active.
func (s *Supervisor) Run() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopping = false
	s.done = make(chan struct{})
	go s.supervise(s.done)
	return nil
}

// Kill sets the persistence flag and kills the daemon.  The supervision
// loop sees the daemon exit, and restarts it if persist is true.  Without
// persist, a daemon that has not been spawned yet never will be.
func (s *Supervisor) Kill(persist bool) error {
	s.lock.Lock()
	s.persist.Store(persist)
	s.stopping = !persist
	cmd := s.cmd
	s.lock.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}
	s.logf("Killing pid %d (persist %v)", cmd.Process.Pid, persist)
	return killProcess(cmd.Process)
}

// Restart kills a running daemon so that it is started again, or starts
// supervision if it was not running.
func (s *Supervisor) Restart() error {
	if e := s.Kill(true); e != ErrNotRunning {
		return e
	}
	if e := s.Run(); e != ErrAlreadyRunning {
		return e
	}
	// Between daemons; the loop will start the next one.
	return nil
}

// Wait blocks until the supervision loop has finished.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.lock.Lock()
	done := s.done
	s.lock.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the daemon for good, and stops watching for hostnames.
func (s *Supervisor) Shutdown() {
	s.Kill(false)
	s.Wait(context.Background())
	s.config.Close()
	s.logf("Shut down")
}

func (s *Supervisor) supervise(done chan struct{}) {
	defer func() {
		s.lock.Lock()
		s.running = false
		s.lock.Unlock()
		close(done)
	}()
	for {
		if !s.runOnce() {
			return
		}
		if !s.persist.Load() {
			return
		}
		s.lock.Lock()
		delay := s.restartDelay
		s.lock.Unlock()
		time.Sleep(delay)

		// A Kill(false) may have come in while we slept.
		if !s.persist.Load() {
			return
		}
		s.lock.Lock()
		s.restarts++
		s.lock.Unlock()
		s.metrics.restarts.Inc()
		s.logf("Restarting")
		s.setState(StateRestarting)
		s.emit(EventRestarting)
	}
}

// prepare writes the configuration and checks that the paths the daemon
// needs are there.  Nothing here stops the daemon being started.
func (s *Supervisor) prepare(exe, configFile string, makeDirs bool) {
	dataDir := s.config.DataDirectory
	if makeDirs {
		if dir := filepath.Dir(configFile); !s.fs.MakeDirAll(dir) {
			s.logf("Failed to create %s", dir)
		}
		if dataDir != "" && !s.fs.MakeDirAll(dataDir) {
			s.logf("Failed to create %s", dataDir)
		}
	}
	if !s.fs.WriteText(configFile, s.config.Serialize()) {
		s.logf("Failed to write %s", configFile)
	}

	if !s.fs.FileExists(configFile) {
		s.reportError(ErrorPathMissing, configFile, ErrPathMissing)
	}
	path := exe
	if lp, e := exec.LookPath(exe); e == nil {
		path = lp
	}
	if !s.fs.FileExists(path) {
		s.reportError(ErrorPathMissing, exe, ErrPathMissing)
	}
	if dataDir != "" && !s.fs.DirExists(dataDir) {
		s.reportError(ErrorPathMissing, dataDir, ErrPathMissing)
	}
}

// runOnce starts the daemon and follows it until it exits.  It returns
// false if the daemon could not be started.
func (s *Supervisor) runOnce() bool {
	s.lock.Lock()
	exe := s.exe
	configFile := s.configFile
	makeDirs := s.makeDirs
	s.lock.Unlock()

	s.prepare(exe, configFile, makeDirs)

	cmd := exec.Command(exe, "-f", configFile)
	cmd.SysProcAttr = sysProcAttr()

	s.setState(StateStarting)

	// Start under the lock, so that Kill always sees a spawned daemon.
	id := uuid.NewString()
	s.lock.Lock()
	if s.stopping {
		s.lock.Unlock()
		s.logf("Stopped before start")
		s.setState(StateExited)
		return false
	}
	stdout, e := cmd.StdoutPipe()
	if e == nil {
		e = cmd.Start()
	}
	if e == nil {
		s.cmd = cmd
		s.runID = id
		s.starts++
	}
	s.lock.Unlock()
	if e != nil {
		s.setState(StateError)
		s.reportError(ErrorSpawn, exe, e)
		return false
	}

	s.pid.Store(int64(cmd.Process.Pid))
	s.progress.Store(0)
	s.metrics.progress.Set(0)
	s.metrics.starts.Inc()
	s.logf("Started %s (pid %d, run %s)", exe, cmd.Process.Pid, id)
	s.setState(StateRunning)

	s.monitor(stdout)

	e = cmd.Wait()
	s.lock.Lock()
	s.cmd = nil
	s.lock.Unlock()
	s.pid.Store(0)
	if e != nil {
		s.logf("Exited: %v", e)
	} else {
		s.logf("Exited")
	}
	s.setState(StateExited)
	s.emit(EventClose)
	return true
}

func (s *Supervisor) monitor(r io.Reader) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			s.handleLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// progressText extracts the text between the marker and the percent sign.
func progressText(line string) (string, bool) {
	i := strings.Index(line, ProgressMarker)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(ProgressMarker):]
	if j := strings.Index(rest, ProgressMarker); j >= 0 {
		rest = rest[:j]
	}
	if j := strings.IndexByte(rest, '%'); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}

func (s *Supervisor) handleLine(line string) {
	s.logf("stdout> %s", line)
	s.metrics.lines.Inc()
	s.events.emit(Event{Kind: EventLine, Line: line})

	text, ok := progressText(line)
	if !ok {
		return
	}
	pct, e := strconv.Atoi(text)
	if e != nil || pct < 0 || pct > 100 {
		s.logf("Ignoring malformed progress %q", text)
		return
	}
	s.progress.Store(int32(pct))
	s.metrics.progress.Set(float64(pct))
	s.events.emit(Event{Kind: EventProgress, Progress: pct})

	if pct == 100 && s.State() != StateReady {
		s.setState(StateReady)
		s.emit(EventReady)
	}
}

// SetProperty changes a property.  See the Prop constants for the types.
func (s *Supervisor) SetProperty(n PropertyName, v interface{}) error {
	if e := s.setProp(n, v); e != nil {
		s.logf("Failed to set property %s: %v", n, e)
		return e
	}
	return nil
}

func (s *Supervisor) setProp(n PropertyName, v interface{}) error {
	switch n {
	case PropLogger:
		l, ok := v.(*log.Logger)
		if !ok {
			return ErrBadPropType
		}
		s.lock.Lock()
		if s.logger != nil {
			s.mlog.DelLogger(s.logger)
		}
		s.logger = l
		if l != nil {
			s.mlog.AddLogger(l)
		}
		s.lock.Unlock()
	case PropName:
		return ErrPropReadOnly
	case PropPersist:
		b, ok := v.(bool)
		if !ok {
			return ErrBadPropType
		}
		s.persist.Store(b)
	case PropRestartDelay:
		d, ok := v.(time.Duration)
		if !ok {
			return ErrBadPropType
		}
		if d < 0 {
			return ErrBadPropValue
		}
		s.lock.Lock()
		s.restartDelay = d
		s.lock.Unlock()
	case PropMakeDirs:
		b, ok := v.(bool)
		if !ok {
			return ErrBadPropType
		}
		s.lock.Lock()
		s.makeDirs = b
		s.lock.Unlock()
		s.config.setMakeDirs(b)
	case PropPollInterval:
		d, ok := v.(time.Duration)
		if !ok {
			return ErrBadPropType
		}
		return s.config.watcher.SetInterval(d)
	case PropExecutable, PropConfigFile:
		str, ok := v.(string)
		if !ok {
			return ErrBadPropType
		}
		if str == "" {
			return ErrBadPropValue
		}
		s.lock.Lock()
		if n == PropExecutable {
			s.exe = str
		} else {
			s.configFile = str
		}
		s.lock.Unlock()
	default:
		return ErrBadPropName
	}
	return nil
}

// Property returns the value of a property.
func (s *Supervisor) Property(n PropertyName) (interface{}, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch n {
	case PropLogger:
		return s.logger, nil
	case PropName:
		return s.name, nil
	case PropPersist:
		return s.persist.Load(), nil
	case PropRestartDelay:
		return s.restartDelay, nil
	case PropMakeDirs:
		return s.makeDirs, nil
	case PropPollInterval:
		return s.config.watcher.Interval(), nil
	case PropExecutable:
		return s.exe, nil
	case PropConfigFile:
		return s.configFile, nil
	}
	return nil, ErrBadPropName
}

// HiddenServiceInfo describes a hidden service for reporting.
type HiddenServiceInfo struct {
	Directory string              `json:"directory"`
	Hostname  string              `json:"hostname"`
	Ports     []HiddenServicePort `json:"ports"`
}

// RunInfo is a snapshot of a supervisor.
type RunInfo struct {
	Name           string              `json:"name"`
	State          State               `json:"state"`
	StateText      string              `json:"stateText"`
	TimeStamp      time.Time           `json:"tstamp"`
	Running        bool                `json:"running"`
	Persist        bool                `json:"persist"`
	Pid            int                 `json:"pid"`
	RunID          string              `json:"runId"`
	Progress       int                 `json:"progress"`
	Starts         int                 `json:"starts"`
	Restarts       int                 `json:"restarts"`
	Executable     string              `json:"executable"`
	ConfigFile     string              `json:"configFile"`
	SocksAddr      string              `json:"socksAddr,omitempty"`
	PreparedPorts  []int               `json:"preparedPorts"`
	HiddenServices []HiddenServiceInfo `json:"hiddenServices"`
}

// HiddenServiceInfos reports the registered hidden services.
func (s *Supervisor) HiddenServiceInfos() []HiddenServiceInfo {
	svcs := s.config.HiddenServices()
	infos := make([]HiddenServiceInfo, 0, len(svcs))
	for _, hs := range svcs {
		infos = append(infos, HiddenServiceInfo{
			Directory: hs.Directory(),
			Hostname:  hs.Hostname(),
			Ports:     hs.Ports(),
		})
	}
	return infos
}

// Info returns a consistent snapshot of the supervisor.
func (s *Supervisor) Info() *RunInfo {
	st := s.State()
	info := &RunInfo{
		Name:           s.name,
		State:          st,
		StateText:      st.String(),
		Persist:        s.Persist(),
		Pid:            s.Pid(),
		Progress:       s.Progress(),
		PreparedPorts:  s.config.PreparedPorts(),
		HiddenServices: s.HiddenServiceInfos(),
	}
	info.SocksAddr, _ = s.config.SocksAddr()
	s.lock.Lock()
	info.TimeStamp = s.stamp
	info.Running = s.running
	info.RunID = s.runID
	info.Starts = s.starts
	info.Restarts = s.restarts
	info.Executable = s.exe
	info.ConfigFile = s.configFile
	s.lock.Unlock()
	return info
}
