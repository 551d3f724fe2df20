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

	"github.com/walteh/merginsync/pkg/localfs"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/syncerr"
)

func (c *Catalog) runList(req *Request) {
	raw, err := c.api.ListProjects(req.ctx)

	var infos []remote.ProjectInfo
	if err == nil {
		infos, err = remote.ParseProjects(raw)
		if err != nil {
			err = &syncerr.NetworkError{Message: "invalid project list: " + err.Error(), Err: err}
		}
	}

	var local map[string]localfs.Summary
	if err == nil {
		local = c.scanAll(infos)
		c.cache.Persist(req.ctx, raw)
	}

	c.complete(req, func() { c.onListReply(req, infos, local, err) })
}

func (c *Catalog) onListReply(req *Request, infos []remote.ProjectInfo, local map[string]localfs.Summary, err error) {
	c.tracker.Release(req.key)
	c.metrics.ObserveRequest(opList, c.clock.Since(req.started), err)

	if err != nil {
		c.publish()
		c.networkFailure(req, syncerr.Network(err, opList))
		return
	}

	c.merge(infos, local)
	c.publish()

	zerolog.Ctx(req.ctx).Debug().Int("projects", len(c.projects)).Msg("catalog refreshed")
	c.emit(Event{Kind: EventListFinished, Message: fmt.Sprintf("%d projects", len(c.projects))})
	req.finish(nil)
}

// networkFailure reports nerr and finishes req. Status is left alone.
func (c *Catalog) networkFailure(req *Request, nerr *syncerr.NetworkError) {
	if nerr.Canceled() || errors.Is(req.ctx.Err(), context.Canceled) {
		c.emit(Event{Kind: EventNotify, Project: req.project, Message: req.op + " canceled", Err: nerr})
	} else {
		zerolog.Ctx(req.ctx).Warn().Err(nerr).Str("op", req.op).Str("key", req.key).Msg("request failed")
		c.emit(Event{Kind: EventNetworkError, Project: req.project, Message: nerr.Message, Err: nerr})
	}
	req.finish(nerr)
}
