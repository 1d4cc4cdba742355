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

//go:build linux
// +build linux

package torvisor

import (
	"os"
	"strconv"
	"strings"
)

// tcpListen is the socket state the kernel reports for listeners.
const tcpListen = "0A"

// BoundPorts lists the local TCP ports in the LISTEN state, IPv4 and
// IPv6 alike.
func BoundPorts() ([]int, error) {
	var ports []int
	var err error
	seen := map[int]bool{}
	for _, file := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		data, e := os.ReadFile(file)
		if e != nil {
			err = e
			continue
		}
		for _, port := range parseProcNetTCP(string(data)) {
			if !seen[port] {
				seen[port] = true
				ports = append(ports, port)
			}
		}
	}
	if len(seen) == 0 && err != nil {
		return nil, err
	}
	return ports, nil
}

func parseProcNetTCP(data string) []int {
	var ports []int
	lines := strings.Split(data, "\n")
	if len(lines) == 0 {
		return nil
	}
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[3] != tcpListen {
			continue
		}
		parts := strings.Split(fields[1], ":")
		if len(parts) != 2 {
			continue
		}
		port, e := strconv.ParseUint(parts[1], 16, 16)
		if e != nil {
			continue
		}
		ports = append(ports, int(port))
	}
	return ports
}
