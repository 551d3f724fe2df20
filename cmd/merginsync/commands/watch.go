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
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/cmd/merginsync/opts"
	"github.com/walteh/merginsync/pkg/catalog"
	"github.com/walteh/merginsync/pkg/watch"
)

func NewWatchCmd(o *opts.RootOpts) *cobra.Command {
	var auto bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the catalog current until interrupted",
		Long: `Watch refreshes the project list every refresh_interval and rescans
a project whenever files change below its directory. With --auto, out of
date projects are refreshed after every listing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := openCatalog(ctx, o)
			if err != nil {
				return err
			}
			defer cat.Close()

			return runWatch(ctx, o, cat, clockwork.NewRealClock(), auto)
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "refresh out of date projects automatically")
	return cmd
}

func runWatch(ctx context.Context, o *opts.RootOpts, cat *catalog.Catalog, clock clockwork.Clock, auto bool) error {
	logger := zerolog.Ctx(ctx)

	if err := os.MkdirAll(o.Config.DataDir, 0o755); err != nil {
		return errors.Errorf("creating data directory: %w", err)
	}

	w, err := watch.New(ctx, o.Config.DataDir, watch.Options{
		Ignore: o.Config.Ignore,
		Clock:  clock,
		Resolve: watch.LongestPrefix(func() []string {
			projects := cat.Projects()
			names := make([]string, len(projects))
			for i, p := range projects {
				names[i] = p.Name
			}
			return names
		}),
	})
	if err != nil {
		return errors.Errorf("watching %s: %w", o.Config.DataDir, err)
	}
	defer w.Close()

	var (
		busy atomic.Bool
		wg   sync.WaitGroup
	)
	defer wg.Wait()

	poll := func() {
		if !busy.CompareAndSwap(false, true) {
			logger.Debug().Msg("previous poll still running")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer busy.Store(false)
			if err := refreshList(ctx, cat); err != nil {
				// already reported through the notifier
				logger.Debug().Err(err).Msg("poll failed")
				return
			}
			if !auto {
				return
			}
			var names []string
			for _, p := range filterStatus(cat.Projects(), catalog.OutOfDate) {
				if !p.Pending {
					names = append(names, p.Name)
				}
			}
			if len(names) > 0 {
				_ = downloadAll(ctx, o, cat, names, o.Config.Concurrency)
			}
		}()
	}

	o.Console.Header("watching " + o.Config.DataDir)
	poll()

	ticker := clock.NewTicker(o.Config.Refresh())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			poll()
		case names, ok := <-w.Changes():
			if !ok {
				return nil
			}
			for _, name := range names {
				if err := cat.RefreshLocalState(ctx, name); err != nil {
					logger.Warn().Err(err).Str("project", name).Msg("rescanning project")
				}
			}
		}
	}
}
