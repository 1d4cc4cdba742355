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
	"net"
	"strconv"
	"strings"
	"sync"
)

const (
	// PortAuto asks for a port to be chosen when the config is written.
	PortAuto = "auto"

	DefaultSocksPortFlags = "IPv6Traffic PreferIPv6"

	lineEnd = "\r\n"
)

// Config is the daemon configuration, serialized to the torrc format
// each time the daemon is started.
//
// The exported fields should be set before the owning Supervisor is run.
// SocksPort is rewritten by Serialize when it is PortAuto.
type Config struct {
	AvoidDiskWrites  bool
	DataDirectory    string
	ControlPort      string
	ControlPortFlags string
	SocksPort        string
	SocksPortFlags   string
	GeoIPFile        string
	GeoIPv6File      string

	// PreparePortCount is how many ports to reserve beyond the first.
	// The extra ports are not written to the file; they are for the
	// application, which learns them from EventPortsPrepared.
	PreparePortCount int

	fs       FileSystem
	alloc    PortAllocator
	events   *notifier
	watcher  *HostnameWatcher
	makeDirs bool
	custom   []string
	services []*HiddenService
	prepared []int
	lock     sync.Mutex
}

func newConfig(fs FileSystem, alloc PortAllocator, events *notifier) *Config {
	c := &Config{
		AvoidDiskWrites: true,
		ControlPort:     PortAuto,
		SocksPort:       PortAuto,
		SocksPortFlags:  DefaultSocksPortFlags,
		fs:              fs,
		alloc:           alloc,
		events:          events,
		makeDirs:        true,
	}
	c.watcher = newHostnameWatcher(c, fs, events)
	c.watcher.start()
	return c
}

// NewConfig returns a Config using the host file system and TCP ports.
// Its HostnameWatcher is already running.
func NewConfig() *Config {
	return NewConfigWith(OSFileSystem{}, NewTCPPortAllocator())
}

// NewConfigWith is NewConfig with explicit collaborators.
func NewConfigWith(fs FileSystem, alloc PortAllocator) *Config {
	return newConfig(fs, alloc, newNotifier("torrc"))
}

// Subscribe registers an observer for events raised by the config and
// its watcher (EventPortsPrepared and EventHiddenService).  With no kinds
// the observer receives everything.
func (c *Config) Subscribe(fn Observer, kinds ...EventKind) int {
	return c.events.subscribe(fn, kinds...)
}

// Unsubscribe removes an observer.
func (c *Config) Unsubscribe(id int) {
	c.events.unsubscribe(id)
}

// Watcher returns the hostname watcher for this config.
func (c *Config) Watcher() *HostnameWatcher {
	return c.watcher
}

// Close stops the hostname watcher.
func (c *Config) Close() {
	c.watcher.Stop()
}

func (c *Config) setMakeDirs(b bool) {
	c.lock.Lock()
	c.makeDirs = b
	c.lock.Unlock()
}

// MakeDirs reports whether missing directories are created.
func (c *Config) MakeDirs() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.makeDirs
}

// AddHiddenService registers a service kept in dir.  Services are written
// in the order they are added.  The directory is created if need be.
func (c *Config) AddHiddenService(dir string) *HiddenService {
	hs := newHiddenService(dir)
	c.lock.Lock()
	if c.makeDirs {
		c.fs.MakeDirAll(dir)
	}
	c.services = append(c.services, hs)
	c.lock.Unlock()
	c.watcher.track(hs)
	return hs
}

// HiddenServices returns the registered services, in order.
func (c *Config) HiddenServices() []*HiddenService {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*HiddenService{}, c.services...)
}

// AddCustom appends a free form line and returns its index.  Custom lines
// are kept for the application; they are not written to the file.
func (c *Config) AddCustom(line string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.custom = append(c.custom, line)
	return len(c.custom) - 1
}

// AddCustomPair is AddCustom for a "key value" line.
func (c *Config) AddCustomPair(key, value string) int {
	return c.AddCustom(key + " " + value)
}

// RemoveCustomAt removes the custom line at index i, if there is one.
func (c *Config) RemoveCustomAt(i int) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if i < 0 || i >= len(c.custom) {
		return false
	}
	c.custom = append(c.custom[:i], c.custom[i+1:]...)
	return true
}

// CustomLines returns a copy of the custom lines.
func (c *Config) CustomLines() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string{}, c.custom...)
}

// PreparedPorts returns the ports chosen by the last preparation.
func (c *Config) PreparedPorts() []int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]int{}, c.prepared...)
}

// PreparePorts chooses a fresh set of ports, replacing any prepared
// before.  Serialize calls this itself when it has to.
func (c *Config) PreparePorts() []int {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.preparePorts()
	return append([]int{}, c.prepared...)
}

// preparePorts is called with the lock held.
func (c *Config) preparePorts() {
	ports := []int{c.alloc.Allocate(DefaultPortStart, nil)}
	for i := 0; i < c.PreparePortCount; i++ {
		start := ports[i] + 1
		if ports[i] == 0 {
			start = DefaultPortStart
		}
		ports = append(ports, c.alloc.Allocate(start, ports))
	}
	c.prepared = ports
	c.events.emit(Event{
		Kind:  EventPortsPrepared,
		Ports: append([]int{}, ports...),
	})
}

func directive(key string, values ...string) string {
	parts := []string{key}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ") + lineEnd
}

// Serialize renders the configuration file.  The first call resolves any
// ports that have to be chosen; later calls reuse them.
func (c *Config) Serialize() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.SocksPort == PortAuto || c.PreparePortCount > 0 {
		if len(c.prepared) == 0 {
			c.preparePorts()
		}
	}
	if c.SocksPort == PortAuto && len(c.prepared) > 0 && c.prepared[0] != 0 {
		c.SocksPort = strconv.Itoa(c.prepared[0])
	}

	var sb strings.Builder
	if c.AvoidDiskWrites {
		sb.WriteString(directive("AvoidDiskWrites", "1"))
	}
	if c.GeoIPFile != "" && c.fs.FileExists(c.GeoIPFile) {
		sb.WriteString(directive("GeoIPFile", c.GeoIPFile))
	}
	if c.GeoIPv6File != "" && c.fs.FileExists(c.GeoIPv6File) {
		sb.WriteString(directive("GeoIPv6File", c.GeoIPv6File))
	}
	if c.DataDirectory != "" {
		if c.makeDirs {
			c.fs.MakeDirAll(c.DataDirectory)
		}
		if c.fs.DirExists(c.DataDirectory) {
			sb.WriteString(directive("DataDirectory", c.DataDirectory))
		}
	}
	if c.ControlPort != "" {
		sb.WriteString(directive("ControlPort", c.ControlPort, c.ControlPortFlags))
	}
	if c.SocksPort != "" {
		sb.WriteString(directive("SocksPort", c.SocksPort, c.SocksPortFlags))
	}
	for _, hs := range c.services {
		for _, line := range hs.directives() {
			sb.WriteString(line + lineEnd)
		}
	}
	return sb.String()
}

func (c *Config) String() string {
	return c.Serialize()
}

// SocksAddr is the address of the daemon's SOCKS listener, once the port
// has been resolved.
func (c *Config) SocksAddr() (string, error) {
	c.lock.Lock()
	p := c.SocksPort
	c.lock.Unlock()
	switch p {
	case "", "0", PortAuto:
		return "", ErrPortUnresolved
	}
	if strings.Contains(p, ":") {
		return p, nil
	}
	return net.JoinHostPort("127.0.0.1", p), nil
}
