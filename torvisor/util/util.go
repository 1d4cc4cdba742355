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

// Package util is used for internal implementation bits in the CLI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/torvisor"
	"github.com/gdamore/torvisor/rest"
)

// Status is a one word summary of a supervisor.
func Status(s *rest.SupervisorInfo) string {
	if !s.Running {
		if s.State == torvisor.StateError && s.Starts == 0 && s.RunID == "" {
			return "idle"
		}
		return "stopped"
	}
	if s.State == torvisor.StateRunning && s.Progress > 0 {
		return fmt.Sprintf("%s %d%%", s.StateText, s.Progress)
	}
	return s.StateText
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

type sorted []*rest.SupervisorInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	aerr := a.Running && a.State == torvisor.StateError
	berr := b.Running && b.State == torvisor.StateError
	if aerr != berr {
		// put failed items at front
		return aerr
	}
	if a.Running != b.Running {
		return a.Running
	}
	return a.Name < b.Name
}

func SortSupervisors(items []*rest.SupervisorInfo) {
	sort.Sort(sorted(items))
}
