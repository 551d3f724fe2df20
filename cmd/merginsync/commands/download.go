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

func NewDownloadCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <project>...",
		Short: "Download or refresh the named projects",
		Long: `Download fetches each named project into the data directory. A
project that already has local files is refreshed: only changed files
are fetched and files gone from the server are removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := openCatalog(ctx, o)
			if err != nil {
				return err
			}
			defer cat.Close()

			return downloadAll(ctx, o, cat, args, o.Config.Concurrency)
		},
	}
	return cmd
}
