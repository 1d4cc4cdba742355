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

// Property names.  Internal names all start with an underscore, as in the
// rest of the supervisor framework.  Consumers must know the type each
// property takes; there is no discovery.
type PropertyName string

const (
	PropLogger       PropertyName = "_Logger"       // *log.Logger, replaces the stderr sink
	PropName         PropertyName = "_Name"         // string, read only
	PropPersist      PropertyName = "_Persist"      // bool, restart on exit
	PropRestartDelay PropertyName = "_RestartDelay" // time.Duration
	PropMakeDirs     PropertyName = "_MakeDirs"     // bool, create missing dirs
	PropPollInterval PropertyName = "_PollInterval" // time.Duration, hostname polling
	PropExecutable   PropertyName = "_Executable"   // string, daemon binary
	PropConfigFile   PropertyName = "_ConfigFile"   // string, torrc location
)
