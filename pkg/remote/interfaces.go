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

// Package remote defines the boundary between the sync client and a remote
// project service, plus the wire types that cross it.
package remote

import (
	"context"
	"io"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 🔌 API is the remote project service as seen by the catalog.
type API interface {
	// Authorized reports whether a non-empty token is configured.
	Authorized() bool
	// ProjectsURL is the catalog listing URL; it doubles as the list request key.
	ProjectsURL() string
	// ProjectURL is the manifest URL of a project; it doubles as the download request key.
	ProjectURL(name string) string

	// ListProjects returns the raw JSON catalog.
	ListProjects(ctx context.Context) ([]byte, error)
	// ProjectManifest returns the server file list of a project.
	ProjectManifest(ctx context.Context, name string) (*Manifest, error)
	// FetchFiles asks for the given files only; the answer is a multipart stream.
	FetchFiles(ctx context.Context, name string, files []ManifestEntry) (*Stream, error)
	// DownloadProject streams every file of a project.
	DownloadProject(ctx context.Context, name string) (*Stream, error)
}

// 📡 Stream is a streamed multipart response. The caller closes Body.
type Stream struct {
	ContentType string
	Body        io.ReadCloser
}

// Options configures an API implementation.
type Options struct {
	APIRoot string
	Token   string
	Tags    []string
}

// Factory builds an API from options.
type Factory func(ctx context.Context, opts Options) (API, error)

var registry = map[string]Factory{}

// Register makes a factory available under name.
func Register(name string, f Factory) {
	registry[name] = f
}

// New builds the API registered under name.
func New(ctx context.Context, name string, opts Options) (API, error) {
	f, ok := registry[name]
	if !ok {
		options := []string{}
		for k := range registry {
			options = append(options, k)
		}
		sort.Strings(options)
		return nil, errors.Errorf("provider %s not found, options: %s", name, strings.Join(options, ", "))
	}
	return f(ctx, opts)
}
