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
)

const (
	DefaultPortStart = 9000
	DefaultPortEnd   = 60000
)

// PortAllocator hands out local TCP ports nobody is listening on.
type PortAllocator interface {
	// Allocate returns the lowest free port at or above start that is not
	// in exclude, or 0 if there is none.
	Allocate(start int, exclude []int) int
}

// FindOpenPort returns the lowest port in [start, end) that is not in
// used, or 0.
func FindOpenPort(start, end int, used []int) int {
	taken := make(map[int]bool, len(used))
	for _, p := range used {
		taken[p] = true
	}
	for port := start; port < end; port++ {
		if !taken[port] {
			return port
		}
	}
	return 0
}

// TCPPortAllocator allocates from the ports currently bound on this host.
// A candidate must also survive a trial listen on the loopback address,
// since the list of bound ports is a snapshot.
type TCPPortAllocator struct {
	Start int // Lower bound used when Allocate is given 0
	End   int // Exclusive upper bound, DefaultPortEnd if 0

	// Bound lists ports with listeners.  Defaults to BoundPorts.
	Bound func() ([]int, error)

	// Probe reports whether a port can be listened on.  Defaults to a
	// trial listen on 127.0.0.1.
	Probe func(port int) bool
}

func probePort(port int) bool {
	l, e := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if e != nil {
		return false
	}
	l.Close()
	return true
}

func (a *TCPPortAllocator) Allocate(start int, exclude []int) int {
	if start <= 0 {
		start = a.Start
	}
	if start <= 0 {
		start = DefaultPortStart
	}
	end := a.End
	if end <= 0 {
		end = DefaultPortEnd
	}
	bound := a.Bound
	if bound == nil {
		bound = BoundPorts
	}
	probe := a.Probe
	if probe == nil {
		probe = probePort
	}

	// A failure to list just means we lean on the probe.
	used, _ := bound()
	used = append(used, exclude...)

	for start < end {
		port := FindOpenPort(start, end, used)
		if port == 0 || probe(port) {
			return port
		}
		used = append(used, port)
		start = port + 1
	}
	return 0
}

// NewTCPPortAllocator returns an allocator over the default range.
func NewTCPPortAllocator() *TCPPortAllocator {
	return &TCPPortAllocator{Start: DefaultPortStart, End: DefaultPortEnd}
}
