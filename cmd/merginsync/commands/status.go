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
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/cmd/merginsync/opts"
	"github.com/walteh/merginsync/pkg/catalog"
)

func NewStatusCmd(o *opts.RootOpts) *cobra.Command {
	var outdated bool

	cmd := &cobra.Command{
		Use:   "status [project]",
		Short: "Show local project status without contacting the server",
		Long: `Status reads the cached project list and the local sync record and
compares them against the data directory. No request is sent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := openCatalog(ctx, o)
			if err != nil {
				return err
			}
			defer cat.Close()

			projects := cat.Projects()
			if len(args) == 1 {
				p, ok := cat.Project(args[0])
				if !ok {
					return errors.Errorf("project %q is not in the cached catalog, run list first", args[0])
				}
				projects = []catalog.Project{p}
			}
			if outdated {
				projects = filterStatus(projects, catalog.OutOfDate)
			}
			return renderProjects(projects)
		},
	}
	cmd.Flags().BoolVar(&outdated, "outdated", false, "only show projects that are out of date")
	return cmd
}

func filterStatus(projects []catalog.Project, want ...catalog.Status) []catalog.Project {
	var out []catalog.Project
	for _, p := range projects {
		for _, s := range want {
			if p.Status == s {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
