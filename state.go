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
)

// State is the lifecycle state of a supervised daemon.  The numeric values
// are stable and are what the REST interface reports alongside the name.
//
//	Error --> Starting --> Running --> Ready
//	             ^            |          |
//	             |            v          v
//	         Restarting <-- Exited <-----+
//
// Exited is terminal only when the supervisor is not persistent.
type State int32

const (
	StateError State = iota
	StateStarting
	StateRunning
	StateReady
	StateExited
	StateRestarting
)

var stateNames = [...]string{
	StateError:      "Error",
	StateStarting:   "Starting",
	StateRunning:    "Running",
	StateReady:      "Ready",
	StateExited:     "Exited",
	StateRestarting: "Restarting",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= 0 && int(s) < len(stateNames)
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return StateError, false
}
