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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/walteh/merginsync/pkg/localfs"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/state"
)

func TestComputeStatus(t *testing.T) {
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	present := localfs.Summary{Files: 2, Size: 10}

	tests := []struct {
		name    string
		project Project
		rec     *state.ProjectRecord
		local   localfs.Summary
		want    Status
	}{
		{
			name:    "no_local_files",
			project: Project{ServerUpdatedAt: &newer},
			rec:     &state.ProjectRecord{ServerUpdated: &newer},
			want:    NoVersion,
		},
		{
			name:    "server_newer_than_sync",
			project: Project{ServerUpdatedAt: &newer},
			rec:     &state.ProjectRecord{ServerUpdated: &older},
			local:   present,
			want:    OutOfDate,
		},
		{
			name:    "synced_current_version",
			project: Project{ServerUpdatedAt: &newer, HasMeta: true, FilesCount: 99},
			rec:     &state.ProjectRecord{ServerUpdated: &newer},
			local:   present,
			want:    UpToDate,
		},
		{
			name:    "meta_mismatch_without_record",
			project: Project{HasMeta: true, FilesCount: 3, Size: 10},
			local:   present,
			want:    OutOfDate,
		},
		{
			name:    "meta_match_without_record",
			project: Project{HasMeta: true, FilesCount: 2, Size: 10},
			local:   present,
			want:    UpToDate,
		},
		{
			name:    "record_without_server_time_falls_back_to_meta",
			project: Project{ServerUpdatedAt: &newer, HasMeta: true, FilesCount: 2, Size: 11},
			rec:     &state.ProjectRecord{},
			local:   present,
			want:    OutOfDate,
		},
		{
			name:  "nothing_known",
			local: present,
			want:  UpToDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, computeStatus(tt.project, tt.rec, tt.local))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "noVersion", NoVersion.String())
	assert.Equal(t, "outOfDate", OutOfDate.String())
	assert.Equal(t, "upToDate", UpToDate.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.Equal(t, "fileFetched", EventFileFetched.String())
	assert.Equal(t, "EventKind(99)", EventKind(99).String())
}

func TestProjectFromInfo(t *testing.T) {
	p := projectFromInfo(remote.ProjectInfo{
		Name:    "alpha",
		Tags:    []string{"a"},
		Created: "2024-01-01T00:00:00Z",
		Updated: "garbage",
		Meta:    &remote.ProjectMeta{Size: 5, FilesCount: 1},
	})

	assert.Equal(t, "alpha", p.Name)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.CreatedAt)
	assert.Nil(t, p.ServerUpdatedAt, "unparseable timestamps are dropped")
	assert.True(t, p.HasMeta)
	assert.Equal(t, int64(5), p.Size)
}
