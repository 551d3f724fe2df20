// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/walteh/merginsync/cmd/merginsync/commands"
	"github.com/walteh/merginsync/cmd/merginsync/opts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootOpts := &opts.RootOpts{}

	rootCmd := &cobra.Command{
		Use:           "merginsync",
		Short:         "Mirror Mergin projects into a local directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, rootOpts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown(cmd.Context())
		},
	}

	addRootFlags(rootCmd)

	rootCmd.AddCommand(
		commands.NewListCmd(rootOpts),
		commands.NewStatusCmd(rootOpts),
		commands.NewDownloadCmd(rootOpts),
		commands.NewSyncCmd(rootOpts),
		commands.NewWatchCmd(rootOpts),
		newVersionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if rootOpts.Console != nil {
			rootOpts.Console.Error(err.Error())
		} else {
			os.Stderr.WriteString("❌ " + err.Error() + "\n")
		}
		os.Exit(1)
	}
}
