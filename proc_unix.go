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

package torvisor

import (
	"os"

	"golang.org/x/sys/unix"
)

// killProcess kills the daemon's whole process group, so that nothing it
// forked keeps our end of its stdout open.
func killProcess(p *os.Process) error {
	if e := unix.Kill(-p.Pid, unix.SIGKILL); e == nil {
		return nil
	}
	return p.Kill()
}
