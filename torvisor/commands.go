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

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdamore/torvisor"
	"github.com/gdamore/torvisor/rest"
	"github.com/gdamore/torvisor/torvisor/util"
)

const timeout = 10 * time.Second

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List supervisors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			names, e := client.Supervisors(ctx)
			if e != nil {
				return e
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [<name> ...]",
		Short: "Show status of supervisors",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if len(args) == 0 {
				if args, e = client.Supervisors(ctx); e != nil {
					return e
				}
			}
			infos := make([]*rest.SupervisorInfo, 0, len(args))
			for _, name := range args {
				info, e := client.GetSupervisor(ctx, name)
				if e != nil {
					return fmt.Errorf("%s: %w", name, e)
				}
				infos = append(infos, info)
			}
			util.SortSupervisors(infos)
			for _, s := range infos {
				d := time.Since(s.TimeStamp)
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-14s %10s %s\n",
					s.Name, util.Status(s), util.FormatDuration(d), s.SocksAddr)
			}
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show detailed supervisor information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			s, e := client.GetSupervisor(ctx, args[0])
			if e != nil {
				return e
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Name:       %s\n", s.Name)
			fmt.Fprintf(w, "Status:     %s\n", util.Status(s))
			fmt.Fprintf(w, "Since:      %s\n", util.FormatDuration(time.Since(s.TimeStamp)))
			fmt.Fprintf(w, "Persist:    %v\n", s.Persist)
			fmt.Fprintf(w, "Pid:        %d\n", s.Pid)
			fmt.Fprintf(w, "Run:        %s\n", s.RunID)
			fmt.Fprintf(w, "Starts:     %d (%d restarts)\n", s.Starts, s.Restarts)
			fmt.Fprintf(w, "Executable: %s\n", s.Executable)
			fmt.Fprintf(w, "Config:     %s\n", s.ConfigFile)
			if s.SocksAddr != "" {
				fmt.Fprintf(w, "SOCKS:      %s\n", s.SocksAddr)
			}
			if len(s.PreparedPorts) != 0 {
				fmt.Fprintf(w, "Ports:      %v\n", s.PreparedPorts)
			}
			for _, hs := range s.HiddenServices {
				fmt.Fprintf(w, "Service:    %s %s\n", hs.Directory, hs.Hostname)
			}
			return nil
		},
	}
}

func newActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if action == "run" {
				return client.Run(ctx, args[0])
			}
			return client.Restart(ctx, args[0])
		},
	}
}

func newKillCmd() *cobra.Command {
	persist := false
	cmd := &cobra.Command{
		Use:   "kill <name>",
		Short: "Kill the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return client.Kill(ctx, args[0], persist)
		},
	}
	cmd.Flags().BoolVarP(&persist, "persist", "p", persist, "restart the daemon after killing it")
	return cmd
}

func newLogCmd() *cobra.Command {
	follow := false
	cmd := &cobra.Command{
		Use:   "log [<name>]",
		Short: "Show the log of a supervisor, or of the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			info, e := client.GetLog(ctx, name)
			cancel()
			if e != nil {
				return e
			}
			show := func(recs []torvisor.LogRecord) {
				for _, r := range recs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
						r.Time.Format(time.Stamp), r.Text)
				}
			}
			show(info.Records)
			for follow {
				next, e := client.WatchLog(cmd.Context(), name, info)
				if e != nil {
					return e
				}
				if next != info {
					show(next.Records)
					info = next
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", follow, "wait for more")
	return cmd
}

func newHostnamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hostnames <name>",
		Short: "Show hidden services and their onion addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, e := newClient()
			if e != nil {
				return e
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			svcs, e := client.Hostnames(ctx, args[0])
			if e != nil {
				return e
			}
			for _, hs := range svcs {
				host := hs.Hostname
				if host == "" {
					host = "(pending)"
				}
				ports := make([]string, 0, len(hs.Ports))
				for _, p := range hs.Ports {
					ports = append(ports, p.String())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					hs.Directory, host, strings.Join(ports, ", "))
			}
			return nil
		},
	}
}
