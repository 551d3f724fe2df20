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

// Package cache persists the last raw project catalog so a client has data
// to show before the first network reply arrives.
package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// 💾 Cache stores one opaque blob at a fixed path.
type Cache struct {
	fs   afero.Fs
	path string
}

// 🏭 New creates a cache backed by the file at path.
func New(fs afero.Fs, path string) *Cache {
	return &Cache{fs: fs, path: filepath.Clean(path)}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Persist replaces the cached blob. Parent directories are created as
// needed. It reports false instead of failing when the file cannot be
// written; whether that matters is the caller's decision.
func (c *Cache) Persist(ctx context.Context, raw []byte) bool {
	logger := zerolog.Ctx(ctx)

	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		logger.Warn().Err(err).Str("path", c.path).Msg("creating cache directory")
		return false
	}

	tmp := c.path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, raw, 0o644); err != nil {
		logger.Warn().Err(err).Str("path", tmp).Msg("writing cache file")
		return false
	}

	if err := c.fs.Rename(tmp, c.path); err != nil {
		_ = c.fs.Remove(tmp)
		logger.Warn().Err(err).Str("path", c.path).Msg("replacing cache file")
		return false
	}

	logger.Debug().Str("path", c.path).Int("bytes", len(raw)).Msg("catalog cached")
	return true
}

// Reload returns the last persisted blob, or nil when there is none.
func (c *Cache) Reload(ctx context.Context) []byte {
	raw, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", c.path).Msg("reading cache file")
		}
		return nil
	}
	return raw
}
