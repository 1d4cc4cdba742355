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

package rest

import (
	"github.com/gdamore/torvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollEtagHeader carries the Etag a client already has.  If the
	// resource still has that Etag, the server waits up to
	// PollTimeHeader seconds for it to change before answering.
	PollEtagHeader = "X-Torvisor-Poll-Etag"
	PollTimeHeader = "X-Torvisor-Poll-Time"

	// MaxPollTime caps the time a long poll may wait, in seconds.
	MaxPollTime = 300
)

var ok struct{}

// ManagerInfo is the body of GET /.
type ManagerInfo struct {
	torvisor.ManagerInfo
	etag string
}

// SupervisorInfo is the body of GET /supervisors/{name}.
type SupervisorInfo struct {
	torvisor.RunInfo
	etag string
}

// LogInfo holds the records of GET /log or GET /supervisors/{name}/log.
type LogInfo struct {
	Records []torvisor.LogRecord
	etag    string
}

// Last is the id of the newest record, 0 if there are none.
func (l *LogInfo) Last() int64 {
	if l == nil || len(l.Records) == 0 {
		return 0
	}
	return l.Records[len(l.Records)-1].Id
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
