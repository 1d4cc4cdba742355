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
	"context"
	"net"

	"golang.org/x/net/proxy"
)

// Dialer returns a dialer that connects through the daemon's SOCKS
// listener.  forward is used to reach the listener itself; nil means a
// direct connection.  It fails with ErrPortUnresolved until the config
// has been written at least once.
func (s *Supervisor) Dialer(forward proxy.Dialer) (proxy.Dialer, error) {
	addr, e := s.config.SocksAddr()
	if e != nil {
		return nil, e
	}
	if forward == nil {
		forward = proxy.Direct
	}
	return proxy.SOCKS5("tcp", addr, nil, forward)
}

// ProbeSocks opens (and closes) a connection to target through the
// daemon, which shows that the SOCKS listener is up and that circuits can
// be built.
func (s *Supervisor) ProbeSocks(ctx context.Context, target string) error {
	d, e := s.Dialer(nil)
	if e != nil {
		return e
	}
	var conn net.Conn
	if cd, ok := d.(proxy.ContextDialer); ok {
		conn, e = cd.DialContext(ctx, "tcp", target)
	} else {
		conn, e = d.Dial("tcp", target)
	}
	if e != nil {
		s.logf("SOCKS probe of %s failed: %v", target, e)
		return e
	}
	return conn.Close()
}
