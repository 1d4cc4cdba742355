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
	"strings"
	"sync"
	"time"
)

// MaxLogRecords is the default capacity of a Log.
const MaxLogRecords = 1000

// LogRecord is one line of a Log.  Ids increase by one per line.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log keeps the most recent lines written to it.  It is an io.Writer, so
// that a log.Logger can write into it, and it lets readers wait for new
// lines to arrive.
type Log struct {
	ring []LogRecord
	next int   // index in ring of the next write
	full bool  // ring has wrapped
	id   int64 // id of the newest record
	cvs  map[*sync.Cond]bool
	mx   sync.Mutex
}

// NewLog returns a Log holding up to n lines, MaxLogRecords if n <= 0.
func NewLog(n int) *Log {
	if n <= 0 {
		n = MaxLogRecords
	}
	return &Log{
		ring: make([]LogRecord, n),
		// Start from the clock so ids from a restarted server do not
		// collide with ones a client may have cached.
		id:  time.Now().UnixNano(),
		cvs: make(map[*sync.Cond]bool),
	}
}

// Write stores each line of b as a record.
func (l *Log) Write(b []byte) (int, error) {
	text := strings.Trim(string(b), "\n")
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(text, "\n") {
		l.id++
		l.ring[l.next] = LogRecord{Id: l.id, Time: now, Text: line}
		l.next++
		if l.next == len(l.ring) {
			l.next = 0
			l.full = true
		}
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
	return len(b), nil
}

// Last is the id of the newest record.
func (l *Log) Last() int64 {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.id
}

// Records returns the retained records newer than since, oldest first,
// and the id of the newest record.  Pass 0 for everything retained.
func (l *Log) Records(since int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	var recs []LogRecord
	if l.full {
		recs = append(recs, l.ring[l.next:]...)
	}
	recs = append(recs, l.ring[:l.next]...)
	i := 0
	for i < len(recs) && recs[i].Id <= since {
		i++
	}
	return append([]LogRecord{}, recs[i:]...), l.id
}

// Watch waits until a record newer than last is written, or until expire
// has passed, and returns the newest id.  An expire of zero just polls.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	cv := sync.NewCond(&l.mx)
	expired := expire <= 0
	var timer *time.Timer
	if !expired {
		timer = time.AfterFunc(expire, func() {
			l.mx.Lock()
			expired = true
			cv.Broadcast()
			l.mx.Unlock()
		})
	}

	l.mx.Lock()
	l.cvs[cv] = true
	for l.id == last && !expired {
		cv.Wait()
	}
	delete(l.cvs, cv)
	id := l.id
	l.mx.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return id
}
