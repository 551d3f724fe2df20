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

package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/walteh/merginsync/cmd/merginsync/opts"
	"github.com/walteh/merginsync/pkg/catalog"
)

func NewSyncCmd(o *opts.RootOpts) *cobra.Command {
	var (
		all     bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring every out of date project up to date",
		Long: `Sync refreshes the project list, then refreshes each project whose
local copy is behind the server. With --all, projects that have never
been downloaded are fetched as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := openCatalog(ctx, o)
			if err != nil {
				return err
			}
			defer cat.Close()

			if !offline {
				if err := refreshList(ctx, cat); err != nil {
					return err
				}
			}

			want := []catalog.Status{catalog.OutOfDate}
			if all {
				want = append(want, catalog.NoVersion)
			}

			var names []string
			for _, p := range filterStatus(cat.Projects(), want...) {
				names = append(names, p.Name)
			}
			if len(names) == 0 {
				o.Console.Success("everything is up to date")
				return nil
			}

			o.Console.Header("syncing " + pluralProjects(len(names)))
			return downloadAll(ctx, o, cat, names, o.Config.Concurrency)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also download projects with no local copy")
	cmd.Flags().BoolVar(&offline, "offline", false, "use the cached project list")
	return cmd
}

func pluralProjects(n int) string {
	if n == 1 {
		return "1 project"
	}
	return pterm.Sprintf("%d projects", n)
}
