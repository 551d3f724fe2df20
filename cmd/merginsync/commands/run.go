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
	"sync"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/merginsync/cmd/merginsync/opts"
	"github.com/walteh/merginsync/pkg/catalog"
	"github.com/walteh/merginsync/pkg/log"
)

func openCatalog(ctx context.Context, o *opts.RootOpts) (*catalog.Catalog, error) {
	if o.Open == nil {
		return nil, errors.New("catalog is not configured")
	}
	return o.Open(ctx, Notifier(ctx, o.Console))
}

// refreshList asks the server for the project list and waits for it.
func refreshList(ctx context.Context, cat *catalog.Catalog) error {
	req, err := cat.ListProjects(ctx)
	if err != nil {
		return errors.Errorf("listing projects: %w", err)
	}
	if err := req.Wait(ctx); err != nil {
		req.Cancel()
		return errors.Errorf("listing projects: %w", err)
	}
	return nil
}

// downloadAll syncs every named project, at most limit at a time. It keeps
// going after a failure and reports how many projects failed.
func downloadAll(ctx context.Context, o *opts.RootOpts, cat *catalog.Catalog, names []string, limit int) error {
	var (
		mu     sync.Mutex
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, name := range names {
		g.Go(func() error {
			if err := downloadOne(gctx, o.Console, cat, name); err != nil {
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.WithDetails(
			errors.Errorf("%d of %d projects failed", len(failed), len(names)),
			"projects", failed,
		)
	}
	return nil
}

func downloadOne(ctx context.Context, console *log.Logger, cat *catalog.Catalog, name string) error {
	mode := "download"
	if p, ok := cat.Project(name); ok && p.Status != catalog.NoVersion {
		mode = "refresh"
	}
	console.StartProjectOperation(ctx, log.ProjectOperation{Name: name, Dir: cat.ProjectDir(name), Mode: mode})

	req, err := cat.DownloadProject(ctx, name)
	if err == nil {
		err = req.Wait(ctx)
		if err != nil && req.Err() == nil {
			req.Cancel()
			<-req.Done()
		}
	}
	console.EndProjectOperation(ctx, name, err)
	return err
}
