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

	"github.com/walteh/merginsync/cmd/merginsync/opts"
)

func NewListCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch the project list from the server",
		Long: `List asks the server for every project visible to the token,
caches the reply and prints each project with its local status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := openCatalog(ctx, o)
			if err != nil {
				return err
			}
			defer cat.Close()

			if err := refreshList(ctx, cat); err != nil {
				return err
			}
			return renderProjects(cat.Projects())
		},
	}
	return cmd
}
