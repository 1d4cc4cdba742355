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

// Command torvisord runs the supervisors described by the manifests in
// <dir>/supervisors, and serves the REST API for them.
//
// The flags are
//
//	-a <address>	- listen address, default 127.0.0.1:8321
//	-d <dir>	- base directory, default "."
//	-n <name>	- manager name
//	-r		- run every supervisor at start (default true)
//	-l <file>	- also log to file, rotated by size
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/natefinch/lumberjack"

	"github.com/gdamore/torvisor"
	"github.com/gdamore/torvisor/rest"
)

var addr string = "127.0.0.1:8321"
var dir string = "."
var name string = "torvisord"
var run bool = true
var logFile string = ""

// showProgress draws the bootstrap progress of every supervisor on one
// terminal line.
func showProgress(m *torvisor.Manager, out io.Writer) {
	for _, s := range m.Supervisors() {
		s.Subscribe(func(ev torvisor.Event) {
			switch ev.Kind {
			case torvisor.EventProgress:
				fmt.Fprintf(out, "\r%s: bootstrapped %3d%%", ev.Name, ev.Progress)
			case torvisor.EventReady:
				fmt.Fprintf(out, "\r%s: ready\n", ev.Name)
			}
		}, torvisor.EventProgress, torvisor.EventReady)
	}
}

func main() {
	flag.StringVar(&addr, "a", addr, "listen address")
	flag.StringVar(&dir, "d", dir, "base directory")
	flag.StringVar(&name, "n", name, "torvisor name")
	flag.BoolVar(&run, "r", run, "run all supervisors")
	flag.StringVar(&logFile, "l", logFile, "log file")
	flag.Parse()

	lock := flock.New(filepath.Join(dir, name+".lock"))
	if locked, e := lock.TryLock(); e != nil {
		log.Fatalf("Failed to lock %s: %v", lock.Path(), e)
	} else if !locked {
		log.Fatalf("Another %s is running in %s", name, dir)
	}
	defer lock.Unlock()

	m := torvisor.NewManager(name)
	if logFile != "" {
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		defer lj.Close()
		m.SetLogger(log.New(io.MultiWriter(os.Stderr, lj), "", log.LstdFlags))
	}

	supDir := filepath.Join(dir, "supervisors")
	mfs, e := torvisor.LoadManifestDir(supDir)
	if mfs == nil && e != nil {
		log.Fatalf("Failed to scan supervisors in %s: %v", supDir, e)
	} else if e != nil {
		log.Printf("Failed to load some manifests: %v", e)
	}
	for _, mf := range mfs {
		s, e := torvisor.NewSupervisorFromManifest(mf)
		if e != nil {
			log.Printf("Failed to create supervisor %s: %v", mf.Name, e)
			continue
		}
		if e := m.Add(s); e != nil {
			log.Printf("Failed to add supervisor %s: %v", mf.Name, e)
			s.Shutdown()
		}
	}

	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		showProgress(m, os.Stdout)
	}
	if run {
		m.RunAll()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	srv := &http.Server{Addr: addr, Handler: rest.NewHandler(m)}
	failed := make(chan error, 1)
	go func() {
		if e := srv.ListenAndServe(); e != http.ErrServerClosed {
			failed <- e
		}
	}()

	// Wait for a termination signal or a dead listener, and shutdown
	// cleanly either way.
	select {
	case sig := <-sigs:
		log.Printf("Caught %v", sig)
	case e := <-failed:
		log.Printf("Failed to serve on %s: %v", addr, e)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if e := m.Shutdown(ctx); e != nil {
		log.Printf("Shutdown incomplete: %v", e)
	}
}
