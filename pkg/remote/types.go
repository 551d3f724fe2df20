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

package remote

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"
)

// ProjectInfo is one entry of the catalog listing.
type ProjectInfo struct {
	Name    string       `json:"name"`
	Tags    []string     `json:"tags"`
	Created string       `json:"created"`
	Updated string       `json:"updated,omitempty"`
	Meta    *ProjectMeta `json:"meta,omitempty"`
}

// ProjectMeta carries the size based staleness hints of older servers.
type ProjectMeta struct {
	Size       int64 `json:"size"`
	FilesCount int   `json:"files_count"`
}

// ManifestEntry is one server file: project relative path plus hex digest.
type ManifestEntry struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size,omitempty"`
	MTime    string `json:"mtime,omitempty"`
}

// Manifest is the server file list of a project.
type Manifest struct {
	Name  string          `json:"name,omitempty"`
	Files []ManifestEntry `json:"files"`
}

// ParseProjects decodes a catalog listing. The payload must be a JSON array.
func ParseProjects(raw []byte) ([]ProjectInfo, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.Errorf("parsing project list: payload is not a JSON array")
	}
	out := []ProjectInfo{}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, errors.Errorf("parsing project list: %w", err)
	}
	return out, nil
}

// ParseManifest decodes a project manifest.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses the ISO 8601 timestamps the service emits, with or
// without fractional seconds and zone. Zone-less values are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
