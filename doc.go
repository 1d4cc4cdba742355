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

// Package torvisor supervises an anonymity-network daemon (tor, or
// anything speaking the same torrc dialect and log phrasing).
//
// A Supervisor owns a Config.  Each time the daemon is started the Config
// is serialized to the configuration file, the daemon is spawned with
// "-f <file>", and its standard output is read line by line.  The
// bootstrap percentages the daemon prints drive the Supervisor through its
// states, and when the daemon exits it is restarted if the Supervisor is
// persistent.
//
// Hidden services are registered on the Config.  The daemon publishes a
// hostname file into each service directory some time after startup; a
// HostnameWatcher polls for these and reports each one exactly once.
//
// Everything interesting is reported as an Event.  Observers are
// registered with Subscribe, and each observer receives its events in
// order on its own goroutine, so a slow or broken observer never stalls
// the daemon.
//
package torvisor
