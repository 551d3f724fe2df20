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

// Package mergin implements remote.API over the Mergin HTTP interface.
package mergin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/syncerr"
)

const (
	// DefaultAPIRoot is used when no root is configured.
	DefaultAPIRoot = "https://public.cloudmergin.com/"

	snippetLimit = 512
)

func init() {
	remote.Register("mergin", func(ctx context.Context, opts remote.Options) (remote.API, error) {
		return New(opts)
	})
}

// 🎯 Client talks to a Mergin server.
type Client struct {
	root  *url.URL
	token string
	tags  []string
	http  *http.Client
}

var _ remote.API = (*Client)(nil)

// Option tweaks a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// 🏭 New creates a client for opts.APIRoot.
func New(opts remote.Options, extra ...Option) (*Client, error) {
	root := opts.APIRoot
	if root == "" {
		root = DefaultAPIRoot
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	u, err := url.Parse(root)
	if err != nil {
		return nil, errors.Errorf("parsing api root %q: %w", root, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("api root %q must be an absolute url", root)
	}

	c := &Client{
		root:  u,
		token: opts.Token,
		tags:  opts.Tags,
		http:  http.DefaultClient,
	}
	for _, o := range extra {
		o(c)
	}
	return c, nil
}

func (c *Client) Authorized() bool {
	return c.token != ""
}

func (c *Client) ProjectsURL() string {
	u := c.endpoint("v1/project", "")
	if len(c.tags) > 0 {
		q := url.Values{}
		q.Set("tags", strings.Join(c.tags, ","))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) ProjectURL(name string) string {
	return c.endpoint("v1/project", name).String()
}

// 📋 ListProjects returns the raw catalog payload.
func (c *Client) ListProjects(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.ProjectsURL(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &syncerr.NetworkError{Message: "reading project list", Err: err}
	}
	return raw, nil
}

// 📜 ProjectManifest fetches and decodes the server file list of name.
func (c *Client) ProjectManifest(ctx context.Context, name string) (*remote.Manifest, error) {
	resp, err := c.do(ctx, http.MethodGet, c.ProjectURL(name), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &syncerr.NetworkError{Message: "reading manifest", Err: err}
	}
	m, err := remote.ParseManifest(raw)
	if err != nil {
		return nil, &syncerr.NetworkError{Message: "invalid manifest", StatusCode: resp.StatusCode, Err: err}
	}
	return m, nil
}

type fetchEntry struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// 📦 FetchFiles posts the wanted path/checksum pairs and returns the multipart answer.
func (c *Client) FetchFiles(ctx context.Context, name string, files []remote.ManifestEntry) (*remote.Stream, error) {
	body := make([]fetchEntry, 0, len(files))
	for _, f := range files {
		body = append(body, fetchEntry{Path: f.Path, Checksum: f.Checksum})
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Errorf("encoding fetch list: %w", err)
	}

	u := c.endpoint("v1/project/fetch", name).String()
	resp, err := c.do(ctx, http.MethodPost, u, raw)
	if err != nil {
		return nil, err
	}
	return &remote.Stream{ContentType: resp.Header.Get("Content-Type"), Body: resp.Body}, nil
}

// 📥 DownloadProject streams the whole project.
func (c *Client) DownloadProject(ctx context.Context, name string) (*remote.Stream, error) {
	u := c.endpoint("v1/project/download", name).String()
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return &remote.Stream{ContentType: resp.Header.Get("Content-Type"), Body: resp.Body}, nil
}

// do sends one request. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	if !c.Authorized() {
		return nil, errors.WithDetails(syncerr.ErrAuth, "url", target)
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, errors.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.token)
	req.Header.Set("Accept", "application/json, multipart/form-data")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	zerolog.Ctx(ctx).Debug().Str("method", method).Str("url", target).Msg("sending request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &syncerr.NetworkError{Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &syncerr.NetworkError{Message: msg, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// endpoint resolves prefix plus an optional project name against the root.
func (c *Client) endpoint(prefix, name string) *url.URL {
	rel := &url.URL{Path: prefix, RawPath: prefix}
	if name != "" {
		rel.Path += "/" + name
		rel.RawPath += "/" + escapeName(name)
	}
	return c.root.ResolveReference(rel)
}

// escapeName escapes each path segment; names look like "namespace/project".
func escapeName(name string) string {
	segs := strings.Split(name, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
