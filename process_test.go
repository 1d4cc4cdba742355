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

//go:build unix

// These tests run POSIX shell scripts from testdata in place of the
// daemon.

package torvisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func script(name string) string {
	p, e := filepath.Abs(filepath.Join("testdata", name))
	if e != nil {
		panic(e)
	}
	return p
}

func newTestSupervisor(t *testing.T, name, exe string) (*Supervisor, string) {
	dir := t.TempDir()
	s := NewSupervisor(name, exe, filepath.Join(dir, "etc", "torrc"))
	setTestLogger(t, s)
	s.SetProperty(PropRestartDelay, time.Millisecond*10)
	s.Config().DataDirectory = filepath.Join(dir, "data")
	return s, dir
}

func waitDone(s *Supervisor) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	return s.Wait(ctx)
}

func states(rec *recorder) []State {
	var st []State
	for _, ev := range rec.of(EventState) {
		st = append(st, ev.State)
	}
	return st
}

func TestSupervisorBootstrap(t *testing.T) {
	Convey("A daemon that bootstraps", t, func() {
		s, dir := newTestSupervisor(t, "bootstrap", script("bootstrap.sh"))
		defer s.Shutdown()
		rec := newRecorder()
		s.Subscribe(rec.observe)
		order := newRecorder()
		s.Subscribe(order.observe, EventProgress, EventReady)

		So(s.Run(), ShouldBeNil)
		So(s.Run(), ShouldEqual, ErrAlreadyRunning)
		So(rec.waitFor(EventReady, 1, time.Second*5), ShouldBeTrue)
		So(order.waitFor(EventReady, 1, time.Second), ShouldBeTrue)

		evs := order.events()
		So(len(evs), ShouldEqual, 5)
		So(evs[3].Kind, ShouldEqual, EventProgress)
		So(evs[3].Progress, ShouldEqual, 100)
		So(evs[4].Kind, ShouldEqual, EventReady)

		So(s.State(), ShouldEqual, StateReady)
		So(s.Progress(), ShouldEqual, 100)
		So(s.Pid(), ShouldNotEqual, 0)
		So(s.RunID(), ShouldNotBeEmpty)
		So(rec.count(EventError), ShouldEqual, 0)

		var pcts []int
		for _, ev := range rec.of(EventProgress) {
			pcts = append(pcts, ev.Progress)
		}
		So(pcts, ShouldResemble, []int{0, 10, 45, 100})
		So(states(rec), ShouldResemble, []State{StateStarting, StateRunning, StateReady})

		text, e := os.ReadFile(filepath.Join(dir, "etc", "torrc"))
		So(e, ShouldBeNil)
		So(string(text), ShouldContainSubstring, "DataDirectory "+filepath.Join(dir, "data")+"\r\n")
		So(string(text), ShouldContainSubstring, "SocksPort "+s.Config().SocksPort+" ")

		Convey("Killing it without persistence ends supervision", func() {
			So(s.Kill(false), ShouldBeNil)
			So(waitDone(s), ShouldBeNil)
			So(rec.waitFor(EventClose, 1, time.Second), ShouldBeTrue)
			So(s.State(), ShouldEqual, StateExited)
			So(s.Pid(), ShouldEqual, 0)
			So(s.Running(), ShouldBeFalse)
			So(rec.count(EventRestarting), ShouldEqual, 0)
			So(testutil.ToFloat64(s.metrics.starts), ShouldEqual, 1)
		})

		Convey("Killing it with persistence starts it again", func() {
			first := s.RunID()
			So(s.Kill(true), ShouldBeNil)
			So(rec.waitFor(EventReady, 2, time.Second*5), ShouldBeTrue)
			So(s.RunID(), ShouldNotEqual, first)
			So(rec.count(EventRestarting), ShouldEqual, 1)
			So(s.Info().Restarts, ShouldEqual, 1)
		})

		Convey("Restart starts a new daemon", func() {
			So(s.Restart(), ShouldBeNil)
			So(rec.waitFor(EventReady, 2, time.Second*5), ShouldBeTrue)
			So(s.Info().Starts, ShouldEqual, 2)
		})
	})
}

func TestSupervisorPersist(t *testing.T) {
	Convey("A daemon that keeps exiting", t, func() {
		s, _ := newTestSupervisor(t, "exit", script("exit.sh"))
		defer s.Shutdown()
		rec := newRecorder()
		s.Subscribe(rec.observe)

		Convey("Is restarted while persistent", func() {
			So(s.Run(), ShouldBeNil)
			So(rec.waitFor(EventRestarting, 2, time.Second*5), ShouldBeTrue)
			So(s.SetProperty(PropPersist, false), ShouldBeNil)
			So(waitDone(s), ShouldBeNil)

			st := states(rec)
			So(st[:5], ShouldResemble, []State{
				StateStarting, StateRunning, StateExited,
				StateRestarting, StateStarting,
			})
			So(rec.count(EventClose), ShouldBeGreaterThanOrEqualTo, 2)
			So(rec.count(EventReady), ShouldEqual, 0)
			lines := rec.of(EventLine)
			So(lines[0].Line, ShouldEqual, "Tor exiting")
		})

		Convey("Is left alone when not persistent", func() {
			So(s.SetProperty(PropPersist, false), ShouldBeNil)
			So(s.Run(), ShouldBeNil)
			So(waitDone(s), ShouldBeNil)
			So(rec.waitFor(EventClose, 1, time.Second), ShouldBeTrue)
			time.Sleep(time.Millisecond * 50)
			So(rec.count(EventRestarting), ShouldEqual, 0)
			So(s.State(), ShouldEqual, StateExited)

			Convey("And can be run again", func() {
				So(s.Run(), ShouldBeNil)
				So(waitDone(s), ShouldBeNil)
				So(rec.waitFor(EventClose, 2, time.Second), ShouldBeTrue)
			})
		})
	})
}

func TestSupervisorNotReady(t *testing.T) {
	Convey("A daemon that never completes bootstrap is not ready", t, func() {
		s, _ := newTestSupervisor(t, "quiet", script("quiet.sh"))
		defer s.Shutdown()
		rec := newRecorder()
		s.Subscribe(rec.observe)
		So(s.Run(), ShouldBeNil)
		So(rec.waitFor(EventLine, 1, time.Second*5), ShouldBeTrue)
		time.Sleep(time.Millisecond * 50)
		So(s.State(), ShouldEqual, StateRunning)
		So(rec.count(EventReady), ShouldEqual, 0)
		So(rec.count(EventProgress), ShouldEqual, 0)
	})
}

func TestSupervisorReadyOnce(t *testing.T) {
	Convey("Repeated completion only makes the daemon ready once", t, func() {
		s, _ := newTestSupervisor(t, "progress", script("progress.sh"))
		defer s.Shutdown()
		rec := newRecorder()
		s.Subscribe(rec.observe)
		So(s.Run(), ShouldBeNil)
		So(rec.waitFor(EventProgress, 2, time.Second*5), ShouldBeTrue)
		So(rec.waitFor(EventLine, 3, time.Second), ShouldBeTrue)
		time.Sleep(time.Millisecond * 20)
		So(rec.count(EventProgress), ShouldEqual, 2)
		So(rec.count(EventReady), ShouldEqual, 1)
		So(s.State(), ShouldEqual, StateReady)
	})
}

func TestSupervisorSpawnFailure(t *testing.T) {
	Convey("A daemon that cannot be spawned", t, func() {
		dir := t.TempDir()
		s, _ := newTestSupervisor(t, "missing", filepath.Join(dir, "no-such-tor"))
		defer s.Shutdown()
		rec := newRecorder()
		s.Subscribe(rec.observe)

		So(s.Run(), ShouldBeNil)
		So(waitDone(s), ShouldBeNil)
		So(rec.waitFor(EventError, 2, time.Second), ShouldBeTrue)

		errs := rec.of(EventError)
		So(errs[0].Err.Kind, ShouldEqual, ErrorPathMissing)
		So(errs[0].Err.Context, ShouldEndWith, "no-such-tor")
		So(errs[1].Err.Kind, ShouldEqual, ErrorSpawn)
		So(s.State(), ShouldEqual, StateError)
		So(s.Persist(), ShouldBeTrue)

		time.Sleep(time.Millisecond * 50)
		So(rec.count(EventRestarting), ShouldEqual, 0)
		So(rec.count(EventError), ShouldEqual, 2)
		So(testutil.ToFloat64(s.metrics.spawnFailures), ShouldEqual, 1)
	})
}

func TestSupervisorMissingPaths(t *testing.T) {
	Convey("Missing paths are reported but do not stop the daemon", t, func() {
		dir := t.TempDir()
		cfg := filepath.Join(dir, "absent", "torrc")
		s := NewSupervisor("paths", script("quiet.sh"), cfg)
		defer s.Shutdown()
		setTestLogger(t, s)
		So(s.SetProperty(PropMakeDirs, false), ShouldBeNil)
		s.Config().DataDirectory = filepath.Join(dir, "data")
		rec := newRecorder()
		s.Subscribe(rec.observe)

		So(s.Run(), ShouldBeNil)
		So(rec.waitFor(EventLine, 1, time.Second*5), ShouldBeTrue)
		So(rec.waitFor(EventError, 2, time.Second), ShouldBeTrue)
		errs := rec.of(EventError)
		So(errs[0].Err.Context, ShouldEqual, cfg)
		So(errs[1].Err.Context, ShouldEqual, filepath.Join(dir, "data"))
		for _, ev := range errs {
			So(ev.Err.Kind, ShouldEqual, ErrorPathMissing)
		}
		So(s.State(), ShouldEqual, StateRunning)
	})
}

func TestSupervisorHostnames(t *testing.T) {
	Convey("Hostnames published by the daemon are discovered", t, func() {
		s, dir := newTestSupervisor(t, "onion", script("hostname.sh"))
		defer s.Shutdown()
		rec := newRecorder()
		s.Subscribe(rec.observe, EventHiddenService, EventReady)
		hs := s.Config().AddHiddenService(filepath.Join(dir, "hs", "web")).AddPort(80, 8080)

		So(s.Run(), ShouldBeNil)
		So(rec.waitFor(EventHiddenService, 1, time.Second*5), ShouldBeTrue)
		So(hs.Hostname(), ShouldEqual, testOnion)
		So(rec.of(EventHiddenService)[0].Name, ShouldEqual, "onion")

		// The supervisor's own observer runs alongside ours.
		time.Sleep(time.Millisecond * 50)

		info := s.Info()
		So(info.HiddenServices[0].Hostname, ShouldEqual, testOnion)
		So(testutil.ToFloat64(s.metrics.hostnames), ShouldEqual, 1)

		recs, _ := s.Log().Records(0)
		found := false
		for _, r := range recs {
			if strings.Contains(r.Text, "published as "+testOnion) {
				found = true
			}
		}
		So(found, ShouldBeTrue)
	})
}

func TestSupervisorShutdown(t *testing.T) {
	Convey("Shutdown stops the daemon and the watcher", t, func() {
		s, _ := newTestSupervisor(t, "shutdown", script("bootstrap.sh"))
		rec := newRecorder()
		s.Subscribe(rec.observe)
		So(s.Run(), ShouldBeNil)
		So(rec.waitFor(EventReady, 1, time.Second*5), ShouldBeTrue)
		s.Shutdown()
		So(s.Running(), ShouldBeFalse)
		So(s.Persist(), ShouldBeFalse)
		n := s.Config().Watcher().Cycles()
		time.Sleep(time.Millisecond * 60)
		So(s.Config().Watcher().Cycles(), ShouldEqual, n)
	})
}

func TestSupervisorShutdownBeforeStart(t *testing.T) {
	Convey("Shutdown right after Run does not leave a daemon behind", t, func() {
		s, _ := newTestSupervisor(t, "early", script("quiet.sh"))
		rec := newRecorder()
		s.Subscribe(rec.observe)
		So(s.Run(), ShouldBeNil)

		finished := make(chan struct{})
		go func() {
			s.Shutdown()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(time.Second * 5):
			s.Kill(false)
		}
		So(s.Running(), ShouldBeFalse)
		So(s.Pid(), ShouldEqual, 0)
		So(s.State(), ShouldEqual, StateExited)
		So(rec.count(EventRestarting), ShouldEqual, 0)

		Convey("And it can be run again", func() {
			So(s.Run(), ShouldBeNil)
			So(waitState(s, StateRunning, time.Second*5), ShouldBeTrue)
			s.Shutdown()
			So(s.Running(), ShouldBeFalse)
		})
	})
}
