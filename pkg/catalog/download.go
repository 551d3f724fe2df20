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

package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/diff"
	"github.com/walteh/merginsync/pkg/localfs"
	"github.com/walteh/merginsync/pkg/multipart"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/state"
	"github.com/walteh/merginsync/pkg/syncerr"
)

// outcome is what a download worker hands back to the owner.
type outcome struct {
	err      error // transport or framing failure
	fetched  int
	removed  int
	failures []error // per file, each matches syncerr.ErrIO
	local    localfs.Summary
	synced   *state.ProjectRecord
}

// 📥 DownloadProject brings the local copy of name up to date. Without a
// local copy the whole project is streamed; otherwise only files whose
// checksum differs from the server manifest are fetched.
func (c *Catalog) DownloadProject(ctx context.Context, name string) (*Request, error) {
	if c.closed.Load() {
		return nil, syncerr.ErrClosed
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	if !c.api.Authorized() {
		return nil, errors.WithDetails(syncerr.ErrAuth, "op", opDownload, "project", name)
	}

	key := c.api.ProjectURL(name)
	if err := c.tracker.TryAcquire(key, name); err != nil {
		c.metrics.DuplicateRejected()
		return nil, err
	}

	req := newRequest(c.requestContext(ctx), opDownload, key, name, c.clock.Now())
	if err := c.start(req, c.runDownload); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Catalog) runDownload(req *Request) {
	name := req.project
	logger := zerolog.Ctx(req.ctx).With().Str("project", name).Logger()

	if !c.post(func() { c.onDownloadStarted(name) }) {
		c.tracker.Release(req.key)
		req.finish(syncerr.ErrClosed)
		return
	}

	// the version being synced is the one listed when the download started
	rec := state.ProjectRecord{Name: name}
	if p, ok := c.Project(name); ok && p.ServerUpdatedAt != nil {
		t := *p.ServerUpdatedAt
		rec.ServerUpdated = &t
	}

	dir := c.ProjectDir(name)
	var out *outcome
	local, err := localfs.Stat(c.fs, dir, c.ignore...)
	switch {
	case err != nil:
		out = &outcome{failures: []error{syncerr.IO("scan", dir, err)}}
	case !local.Exists():
		logger.Debug().Msg("no local copy, downloading whole project")
		out = c.fullDownload(req, dir)
	default:
		logger.Debug().Int("files", local.Files).Msg("local copy found, refreshing from manifest")
		out = c.refresh(req, dir)
	}

	if after, err := localfs.Stat(c.fs, dir, c.ignore...); err == nil {
		out.local = after
	}

	if out.err == nil && len(out.failures) == 0 {
		rec.SyncedAt = c.clock.Now()
		rec.FilesCount = out.local.Files
		rec.Size = out.local.Size
		if err := c.lock.Put(req.ctx, rec); err != nil {
			logger.Warn().Err(err).Msg("recording sync")
		}
		out.synced = &rec
	}

	c.complete(req, func() { c.onDownloadDone(req, out) })
}

func (c *Catalog) fullDownload(req *Request, dir string) *outcome {
	stream, err := c.api.DownloadProject(req.ctx, req.project)
	if err != nil {
		return &outcome{err: err}
	}
	out, _ := c.decode(req, dir, stream)
	return out
}

// refresh runs manifest, diff, fetch and obsolete deletion in that order.
func (c *Catalog) refresh(req *Request, dir string) *outcome {
	manifest, err := c.api.ProjectManifest(req.ctx, req.project)
	if err != nil {
		return &outcome{err: err}
	}

	res, err := diff.Compute(req.ctx, c.fs, dir, manifest.Files, diff.Options{Ignore: c.ignore})
	if err != nil {
		return &outcome{err: err}
	}
	c.post(func() { c.onManifest(req, res) })

	out := &outcome{}
	if c.policy == DeleteImmediately {
		c.removeObsolete(req, dir, res.Obsolete, out)
	}

	if len(res.ToFetch) > 0 {
		stream, err := c.api.FetchFiles(req.ctx, req.project, res.ToFetch)
		if err != nil {
			out.err = err
			return out
		}
		fetched, written := c.decode(req, dir, stream)
		out.err = fetched.err
		out.fetched = fetched.fetched
		out.failures = append(out.failures, fetched.failures...)

		if out.err == nil {
			for _, e := range res.ToFetch {
				if _, ok := written[e.Path]; !ok {
					out.failures = append(out.failures, syncerr.IO("fetch", e.Path, errors.New("missing from response")))
				}
			}
		}
	}

	if out.err == nil && c.policy == DeleteAfterFetch {
		c.removeObsolete(req, dir, res.Obsolete, out)
	}
	return out
}

// decode streams a multipart answer into dir and returns the paths written.
func (c *Catalog) decode(req *Request, dir string, stream *remote.Stream) (*outcome, map[string]struct{}) {
	defer stream.Body.Close()

	out := &outcome{}
	written := map[string]struct{}{}

	boundary, err := multipart.BoundaryFromContentType(stream.ContentType)
	if err != nil {
		out.err = err
		return out, written
	}

	dec := multipart.NewDecoder(c.fs, dir, boundary, multipart.Options{
		Pool: c.pool,
		OnFile: func(f multipart.FileResult) {
			if f.Err != nil {
				c.metrics.FileError("write")
				out.failures = append(out.failures, f.Err)
				return
			}
			out.fetched++
			written[f.Path] = struct{}{}
			c.metrics.FileFetched(f.Size)
			c.post(func() {
				c.emit(Event{Kind: EventFileFetched, Project: req.project, Path: f.Path, Size: f.Size})
			})
		},
	})

	if _, err := dec.Decode(req.ctx, stream.Body); err != nil {
		out.err = err
	}
	return out, written
}

func (c *Catalog) removeObsolete(req *Request, dir string, paths []string, out *outcome) {
	for _, p := range paths {
		if errs := diff.DeleteObsolete(req.ctx, c.fs, dir, []string{p}); len(errs) > 0 {
			c.metrics.FileError("remove")
			out.failures = append(out.failures, errs...)
			continue
		}
		out.removed++
		c.metrics.FileRemoved()
		c.post(func() {
			c.emit(Event{Kind: EventFileRemoved, Project: req.project, Path: p})
		})
	}
}

func (c *Catalog) onDownloadStarted(name string) {
	p := c.lookup(name)
	if p == nil {
		c.index[name] = len(c.projects)
		c.projects = append(c.projects, Project{Name: name, Status: NoVersion})
		p = &c.projects[len(c.projects)-1]
	}
	p.Pending = true
	c.publish()
}

func (c *Catalog) onManifest(req *Request, res *diff.Result) {
	zerolog.Ctx(req.ctx).Debug().
		Str("project", req.project).
		Int("fetch", len(res.ToFetch)).
		Int("obsolete", len(res.Obsolete)).
		Msg("manifest compared")

	if res.Empty() {
		c.emit(Event{Kind: EventNotify, Project: req.project, Message: req.project + " is already up to date"})
		return
	}
	c.emit(Event{
		Kind:    EventNotify,
		Project: req.project,
		Message: fmt.Sprintf("%s: %d to fetch, %d obsolete", req.project, len(res.ToFetch), len(res.Obsolete)),
	})
}

// onDownloadDone is the only place a download's tracker entry is released
// while the catalog runs.
func (c *Catalog) onDownloadDone(req *Request, out *outcome) {
	c.tracker.Release(req.key)

	name := req.project
	p := c.lookup(name)
	if p != nil {
		p.Pending = false
	}

	var failure error
	if out.err == nil && len(out.failures) > 0 {
		failure = errors.Errorf("syncing %s: %d file(s) failed: %w", name, len(out.failures), out.failures[0])
	}
	if out.err != nil {
		failure = out.err
	}
	c.metrics.ObserveRequest(opDownload, c.clock.Since(req.started), failure)

	partial := func() {
		if p == nil {
			return
		}
		if out.local.Exists() {
			p.Status = OutOfDate
		} else {
			p.Status = NoVersion
		}
	}

	switch {
	case out.err != nil && errors.Is(out.err, syncerr.ErrDecode):
		partial()
		c.publish()
		c.emit(Event{Kind: EventNotify, Project: name, Message: "download of " + name + " failed", Err: out.err})
		req.finish(out.err)

	case out.err != nil:
		c.publish()
		c.networkFailure(req, syncerr.Network(out.err, opDownload))

	case failure != nil:
		partial()
		c.publish()
		c.emit(Event{Kind: EventNotify, Project: name, Message: "download of " + name + " incomplete", Err: failure})
		req.finish(failure)

	default:
		if p != nil {
			p.Status = UpToDate
			if out.synced != nil {
				p.LocalUpdatedAt = syncedVersion(*out.synced)
			}
		}
		c.publish()

		zerolog.Ctx(req.ctx).Info().
			Str("project", name).
			Int("fetched", out.fetched).
			Int("removed", out.removed).
			Msg("project synced")
		c.emit(Event{Kind: EventDownloadFinished, Project: name, Dir: c.ProjectDir(name)})
		req.finish(nil)
	}
}
