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
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("Supervisor is already running")
	ErrNotRunning     = errors.New("Daemon is not running")
	ErrNoSupervisor   = errors.New("No such supervisor")
	ErrConflict       = errors.New("Supervisor name already in use")
	ErrBadPropType    = errors.New("Bad property type")
	ErrBadPropName    = errors.New("Bad property name")
	ErrBadPropValue   = errors.New("Bad property value")
	ErrPropReadOnly   = errors.New("Property not changeable")
	ErrPortUnresolved = errors.New("SOCKS port not resolved yet")
	ErrPathMissing    = errors.New("Path does not exist")
	ErrBadManifest    = errors.New("Bad manifest")
)

// ErrorKind classifies the errors reported through EventError.
type ErrorKind int

const (
	// ErrorPathMissing is reported when the configuration file, the
	// executable, or the data directory is absent just before the
	// daemon is spawned.  It is advisory; the spawn is still attempted.
	ErrorPathMissing ErrorKind = iota

	// ErrorSpawn is reported when the daemon could not be started at
	// all.  The supervisor gives up; persistence does not apply.
	ErrorSpawn
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPathMissing:
		return "path-missing"
	case ErrorSpawn:
		return "spawn-failure"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the payload of EventError.  Context names what was being
// done, usually a path.
type Error struct {
	Kind    ErrorKind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Context
	}
	return e.Kind.String() + ": " + e.Context + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
