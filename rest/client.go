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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gdamore/torvisor"
)

// Client talks to a Handler.  It caches what it fetches, and uses the
// long poll headers to wait for changes.
type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client

	// Cached data
	manager *ManagerInfo
	supers  map[string]*SupervisorInfo
	names   []string // supervisor names
	etag    string   // etag for list of supervisors
	lock    sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/supervisors"
	}
	return c.base + "/supervisors/" + url.PathEscape(name)
}

// Manager returns the manager information, waiting for it to change if
// last is not nil.
func (c *Client) Manager(ctx context.Context, last *ManagerInfo) (*ManagerInfo, error) {
	otag, secs := "", 0
	if last != nil {
		otag, secs = last.etag, MaxPollTime
	}
	v := &ManagerInfo{}
	etag, e := c.poll(ctx, c.base+"/", otag, secs, v)
	if e != nil {
		return nil, e
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if etag == "" {
		return c.manager, nil
	}
	v.etag = etag
	c.manager = v
	return v, nil
}

func (c *Client) pollSupervisors(ctx context.Context, secs int) ([]string, error) {
	c.lock.Lock()
	otag := c.etag
	onames := c.names
	c.lock.Unlock()

	v := []string{}
	etag, e := c.poll(ctx, c.url(""), otag, secs, &v)
	if e != nil {
		return nil, e
	}
	if etag == "" || etag == otag {
		return onames, nil
	}
	supers := make(map[string]*SupervisorInfo)

	c.lock.Lock()
	c.etag = etag
	c.names = v
	for _, n := range v {
		if info, ok := c.supers[n]; ok {
			supers[n] = info
		}
	}
	c.supers = supers
	c.lock.Unlock()

	return v, nil
}

// Supervisors returns the names of the supervisors.
func (c *Client) Supervisors(ctx context.Context) ([]string, error) {
	return c.pollSupervisors(ctx, 0)
}

// WatchSupervisors waits for the set of supervisors to change.
func (c *Client) WatchSupervisors(ctx context.Context) ([]string, error) {
	return c.pollSupervisors(ctx, MaxPollTime)
}

func (c *Client) pollSupervisor(ctx context.Context, name string, secs int, last *SupervisorInfo) (*SupervisorInfo, error) {
	c.lock.Lock()
	cached, ok := c.supers[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		// Something newer than last is already cached.
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &SupervisorInfo{}
	etag, e := c.poll(ctx, c.url(name), otag, secs, v)
	if e != nil {
		c.lock.Lock()
		delete(c.supers, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.supers[name] = v
	c.lock.Unlock()
	return v, nil
}

// GetSupervisor fetches the current information for a supervisor.
func (c *Client) GetSupervisor(ctx context.Context, name string) (*SupervisorInfo, error) {
	return c.pollSupervisor(ctx, name, 0, nil)
}

// WatchSupervisor waits for something to change since last.
func (c *Client) WatchSupervisor(ctx context.Context, name string, last *SupervisorInfo) (*SupervisorInfo, error) {
	return c.pollSupervisor(ctx, name, MaxPollTime, last)
}

// Hostnames returns the hidden services of a supervisor.
func (c *Client) Hostnames(ctx context.Context, name string) ([]torvisor.HiddenServiceInfo, error) {
	var v []torvisor.HiddenServiceInfo
	if _, e := c.poll(ctx, c.url(name)+"/hostnames", "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

// poll issues a GET against the URL.  With an etag the request is
// conditional, and with wait it becomes a long poll that the server
// answers when the value changes.  It returns the new Etag, or "" if the
// value did not change.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func readError(res *http.Response) error {
	e := &Error{}
	if body, err := io.ReadAll(res.Body); err == nil && json.Unmarshal(body, e) == nil && e.Message != "" {
		return e
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

func (c *Client) post(ctx context.Context, url string) error {
	req, e := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(""))
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", "text/plain") // we don't really care
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	return nil
}

func (c *Client) Run(ctx context.Context, name string) error {
	return c.post(ctx, c.url(name)+"/run")
}

// Kill kills the daemon.  It is only started again if persist is true.
func (c *Client) Kill(ctx context.Context, name string, persist bool) error {
	return c.post(ctx, c.url(name)+"/kill?persist="+strconv.FormatBool(persist))
}

func (c *Client) Restart(ctx context.Context, name string) error {
	return c.post(ctx, c.url(name)+"/restart")
}

func (c *Client) pollLog(ctx context.Context, name string, secs int, last *LogInfo) (*LogInfo, error) {
	u := c.url(name) + "/log"
	if name == "" {
		u = c.base + "/log"
	}
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
		u += "?since=" + strconv.FormatInt(last.Last(), 10)
	}

	v := &LogInfo{}
	etag, e := c.poll(ctx, u, otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// GetLog returns the retained log of a supervisor, or of the manager if
// name is empty.
func (c *Client) GetLog(ctx context.Context, name string) (*LogInfo, error) {
	return c.pollLog(ctx, name, 0, nil)
}

// WatchLog waits for records newer than last, and returns only those.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, name, MaxPollTime, last)
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t http.RoundTripper, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		base:   strings.TrimSuffix(baseURI, "/"),
		client: &http.Client{Transport: t},
		supers: make(map[string]*SupervisorInfo),
	}
}
