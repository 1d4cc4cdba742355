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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdamore/torvisor"
)

// Handler wraps a Manager, adding http.Handler functionality.
type Handler struct {
	m   *torvisor.Manager
	r   *mux.Router
	reg *prometheus.Registry
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// waitEtag implements the long poll.  If the client holds the current
// tag and asked to wait, it waits for the tag to change.  It returns the
// tag to send, and false if the client's copy is still good.
func (h *Handler) waitEtag(w http.ResponseWriter, r *http.Request,
	cur int64, watch func(int64, time.Duration) int64) (int64, bool) {

	if old, e := strconv.ParseInt(r.Header.Get(PollEtagHeader), 10, 64); e == nil && old == cur {
		secs, _ := strconv.Atoi(r.Header.Get(PollTimeHeader))
		if secs > MaxPollTime {
			secs = MaxPollTime
		}
		if secs > 0 {
			cur = watch(old, time.Duration(secs)*time.Second)
		}
	}
	etag := strconv.FormatInt(cur, 10)
	w.Header().Set("Etag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return cur, false
	}
	return cur, true
}

func (h *Handler) getManager(w http.ResponseWriter, r *http.Request) {
	if _, fresh := h.waitEtag(w, r, h.m.Serial(), h.m.WatchSerial); fresh {
		h.writeJson(w, h.m.GetInfo())
	}
}

func (h *Handler) listSupervisors(w http.ResponseWriter, r *http.Request) {
	if _, fresh := h.waitEtag(w, r, h.m.ListSerial(), h.m.WatchSupervisors); !fresh {
		return
	}
	supers := h.m.Supervisors()
	l := make([]string, 0, len(supers))
	for _, s := range supers {
		l = append(l, s.Name())
	}
	h.writeJson(w, l)
}

func (h *Handler) findSupervisor(r *http.Request) (*torvisor.Supervisor, *Error) {
	name := mux.Vars(r)["name"]
	if s, e := h.m.Get(name); e == nil {
		return s, nil
	}
	return nil, &Error{http.StatusNotFound, "Supervisor not found"}
}

func (h *Handler) getSupervisor(w http.ResponseWriter, r *http.Request) {
	s, e := h.findSupervisor(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	if _, fresh := h.waitEtag(w, r, h.m.Serial(), h.m.WatchSerial); fresh {
		h.writeJson(w, s.Info())
	}
}

func (h *Handler) getHostnames(w http.ResponseWriter, r *http.Request) {
	if s, e := h.findSupervisor(r); e != nil {
		h.writeError(w, e)
	} else {
		h.writeJson(w, s.HiddenServiceInfos())
	}
}

func (h *Handler) action(fn func(*torvisor.Supervisor) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s, e := h.findSupervisor(r); e != nil {
			h.writeError(w, e)
		} else if err := fn(s); err != nil {
			h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
		} else {
			h.writeJson(w, ok)
		}
	}
}

func runSupervisor(s *torvisor.Supervisor) error {
	return s.Run()
}

func restartSupervisor(s *torvisor.Supervisor) error {
	return s.Restart()
}

func (h *Handler) killSupervisor(w http.ResponseWriter, r *http.Request) {
	persist, _ := strconv.ParseBool(r.URL.Query().Get("persist"))
	h.action(func(s *torvisor.Supervisor) error {
		return s.Kill(persist)
	})(w, r)
}

func (h *Handler) writeLog(w http.ResponseWriter, r *http.Request, l *torvisor.Log) {
	if _, fresh := h.waitEtag(w, r, l.Last(), l.Watch); !fresh {
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	recs, _ := l.Records(since)
	if recs == nil {
		recs = []torvisor.LogRecord{}
	}
	h.writeJson(w, recs)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	if s, e := h.findSupervisor(r); e != nil {
		h.writeError(w, e)
	} else {
		h.writeLog(w, r, s.Log())
	}
}

func (h *Handler) getManagerLog(w http.ResponseWriter, r *http.Request) {
	h.writeLog(w, r, h.m.Log())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// Registry is the registry served on /metrics.  It holds the metrics of
// every supervisor in the manager, and more collectors may be added.
func (h *Handler) Registry() *prometheus.Registry {
	return h.reg
}

func NewHandler(m *torvisor.Manager) *Handler {
	r := mux.NewRouter()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m)
	h := &Handler{m: m, r: r, reg: reg}
	r.HandleFunc("/", h.getManager).Methods("GET")
	r.HandleFunc("/log", h.getManagerLog).Methods("GET")
	r.HandleFunc("/supervisors", h.listSupervisors).Methods("GET")
	r.HandleFunc("/supervisors/{name}", h.getSupervisor).Methods("GET")
	r.HandleFunc("/supervisors/{name}/run", h.action(runSupervisor)).Methods("POST")
	r.HandleFunc("/supervisors/{name}/kill", h.killSupervisor).Methods("POST")
	r.HandleFunc("/supervisors/{name}/restart", h.action(restartSupervisor)).Methods("POST")
	r.HandleFunc("/supervisors/{name}/log", h.getLog).Methods("GET")
	r.HandleFunc("/supervisors/{name}/hostnames", h.getHostnames).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	return h
}
