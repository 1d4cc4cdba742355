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
	"strconv"
	"strings"
	"sync"
)

// HiddenServicePort maps a port on the onion address to a local server.
type HiddenServicePort struct {
	OnionPort  int    `json:"onionPort" yaml:"onionPort"`
	ServerPort int    `json:"serverPort" yaml:"serverPort"`
	ServerHost string `json:"serverHost,omitempty" yaml:"serverHost,omitempty"`
}

// Target is the HiddenServicePort target as the daemon expects it.
func (p HiddenServicePort) Target() string {
	if p.ServerHost == "" {
		return strconv.Itoa(p.ServerPort)
	}
	return p.ServerHost + ":" + strconv.Itoa(p.ServerPort)
}

func (p HiddenServicePort) String() string {
	return strconv.Itoa(p.OnionPort) + " " + p.Target()
}

// HiddenService is a service the daemon publishes on an onion address.
// The directory is fixed at creation.  The hostname is filled in once, by
// the HostnameWatcher, when the daemon has written it out.
type HiddenService struct {
	dir      string
	hostname string
	ports    []HiddenServicePort
	lock     sync.Mutex
}

func newHiddenService(dir string) *HiddenService {
	return &HiddenService{dir: dir}
}

// Directory is where the daemon keeps the service keys and hostname.
func (hs *HiddenService) Directory() string {
	return hs.dir
}

// Hostname returns the published onion hostname, or "" if it has not
// been discovered yet.
func (hs *HiddenService) Hostname() string {
	hs.lock.Lock()
	defer hs.lock.Unlock()
	return hs.hostname
}

// setHostname records the hostname if none was recorded before.  Only
// the watcher calls this.
func (hs *HiddenService) setHostname(name string) bool {
	hs.lock.Lock()
	defer hs.lock.Unlock()
	if hs.hostname != "" || name == "" {
		return false
	}
	hs.hostname = name
	return true
}

// AddPort maps onionPort to serverPort on the local host.  It returns the
// service so that calls can be chained.
func (hs *HiddenService) AddPort(onionPort, serverPort int) *HiddenService {
	return hs.AddPortHost(onionPort, serverPort, "")
}

// AddPortHost is AddPort with an explicit server host.
func (hs *HiddenService) AddPortHost(onionPort, serverPort int, host string) *HiddenService {
	hs.lock.Lock()
	hs.ports = append(hs.ports, HiddenServicePort{
		OnionPort:  onionPort,
		ServerPort: serverPort,
		ServerHost: host,
	})
	hs.lock.Unlock()
	return hs
}

// Ports returns a copy of the port mappings, in the order added.
func (hs *HiddenService) Ports() []HiddenServicePort {
	hs.lock.Lock()
	defer hs.lock.Unlock()
	return append([]HiddenServicePort{}, hs.ports...)
}

// OnionPorts lists the onion side ports, comma separated.
func (hs *HiddenService) OnionPorts() string {
	ports := hs.Ports()
	s := make([]string, 0, len(ports))
	for _, p := range ports {
		s = append(s, strconv.Itoa(p.OnionPort))
	}
	return strings.Join(s, ", ")
}

// directives renders the configuration lines for this service.
func (hs *HiddenService) directives() []string {
	lines := []string{"HiddenServiceDir " + hs.dir}
	for _, p := range hs.Ports() {
		lines = append(lines, "HiddenServicePort "+p.String())
	}
	return lines
}

// String returns the service's configuration block.
func (hs *HiddenService) String() string {
	return strings.Join(hs.directives(), lineEnd)
}
