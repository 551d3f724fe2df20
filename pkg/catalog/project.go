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
	"time"

	"github.com/walteh/merginsync/pkg/localfs"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/state"
)

// Status is the derived local state of a project. It is never persisted.
type Status int

const (
	NoVersion Status = iota
	OutOfDate
	UpToDate
)

func (s Status) String() string {
	switch s {
	case NoVersion:
		return "noVersion"
	case OutOfDate:
		return "outOfDate"
	case UpToDate:
		return "upToDate"
	default:
		return "unknown"
	}
}

// 📁 Project is one catalog entry as seen by callers.
type Project struct {
	Name      string
	Tags      []string
	CreatedAt time.Time

	// LocalUpdatedAt is the server version the local copy was synced from.
	LocalUpdatedAt  *time.Time
	ServerUpdatedAt *time.Time

	Status  Status
	Pending bool

	// Size and FilesCount come from the listing's meta block, when present.
	Size       int64
	FilesCount int
	HasMeta    bool
}

func projectFromInfo(info remote.ProjectInfo) Project {
	p := Project{
		Name: info.Name,
		Tags: append([]string(nil), info.Tags...),
	}
	if t, ok := remote.ParseTime(info.Created); ok {
		p.CreatedAt = t
	}
	if t, ok := remote.ParseTime(info.Updated); ok {
		p.ServerUpdatedAt = &t
	}
	if info.Meta != nil {
		p.Size = info.Meta.Size
		p.FilesCount = info.Meta.FilesCount
		p.HasMeta = true
	}
	return p
}

func (p Project) clone() Project {
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

// computeStatus decides a project's status from the listing, the sync
// record and what is on disk. Rules, first match wins:
//
//  1. no local files: NoVersion
//  2. sync record and listing both carry a server timestamp: OutOfDate
//     when the listing is newer
//  3. listing carries meta: OutOfDate unless file count and size match
//  4. otherwise UpToDate
func computeStatus(p Project, rec *state.ProjectRecord, local localfs.Summary) Status {
	if !local.Exists() {
		return NoVersion
	}
	if rec != nil && rec.ServerUpdated != nil && p.ServerUpdatedAt != nil {
		if p.ServerUpdatedAt.After(*rec.ServerUpdated) {
			return OutOfDate
		}
		return UpToDate
	}
	if p.HasMeta {
		if local.Files != p.FilesCount || local.Size != p.Size {
			return OutOfDate
		}
	}
	return UpToDate
}
