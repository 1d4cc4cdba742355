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

// Command torvisor is a client for torvisord.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- server address, default is http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	list                - list all supervisors
//	status [<name> ...] - show status for the named supervisors (or all)
//	info <name>         - show detailed supervisor info
//	run <name>          - start supervising
//	kill [-p] <name>    - kill the daemon; with -p it is restarted
//	restart <name>      - restart the daemon
//	log [-f] [<name>]   - show the log of a supervisor, or of the server
//	hostnames <name>    - show hidden services and their onion addresses
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gdamore/torvisor/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""

func newClient() (*rest.Client, error) {
	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			return nil, fmt.Errorf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}
	return client, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "torvisor",
		Short:         "Torvisor client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&addr, "address", "a", addr, "torvisord address")
	root.PersistentFlags().StringVarP(&auth, "user", "u", auth, "user:pass authentication")

	root.AddCommand(newListCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newActionCmd("run", "Start supervising"))
	root.AddCommand(newKillCmd())
	root.AddCommand(newActionCmd("restart", "Restart the daemon"))
	root.AddCommand(newLogCmd())
	root.AddCommand(newHostnamesCmd())
	return root
}

func main() {
	if e := newRootCmd().Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", e)
		os.Exit(1)
	}
}
