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

// Package diff compares a server manifest with a local project directory.
package diff

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/localfs"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/syncerr"
)

// Options tunes Compute.
type Options struct {
	// Ignore holds doublestar globs for local paths that are never reported obsolete.
	Ignore []string
}

// Result is what a sync has to do.
type Result struct {
	// ToFetch keeps manifest order.
	ToFetch []remote.ManifestEntry
	// Obsolete is sorted and unique.
	Obsolete []string
}

// Empty reports whether the local copy already matches the manifest.
func (r *Result) Empty() bool {
	return len(r.ToFetch) == 0 && len(r.Obsolete) == 0
}

// 🔍 Compute returns the entries whose local checksum differs from the
// server (missing, empty and unreadable files included) and the local
// files the server no longer lists.
func Compute(ctx context.Context, fs afero.Fs, dir string, entries []remote.ManifestEntry, opts Options) (*Result, error) {
	local, err := localfs.ListFiles(fs, dir, opts.Ignore...)
	if err != nil {
		return nil, errors.Errorf("listing local files: %w", err)
	}

	remaining := make(map[string]struct{}, len(local))
	for _, p := range local {
		remaining[p] = struct{}{}
	}

	res := &Result{}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Errorf("computing diff: %w", err)
		}

		p, err := normalize(e.Path)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		// a path the server lists is never obsolete, even while it is re-fetched
		delete(remaining, p)

		sum := localfs.Checksum(fs, filepath.Join(dir, filepath.FromSlash(p)))
		if sum == "" || !strings.EqualFold(sum, e.Checksum) {
			e.Path = p
			res.ToFetch = append(res.ToFetch, e)
		}
	}

	for p := range remaining {
		res.Obsolete = append(res.Obsolete, p)
	}
	sort.Strings(res.Obsolete)

	zerolog.Ctx(ctx).Debug().
		Str("dir", dir).
		Int("manifest", len(entries)).
		Int("fetch", len(res.ToFetch)).
		Int("obsolete", len(res.Obsolete)).
		Msg("computed diff")

	return res, nil
}

func normalize(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	clean := path.Clean(p)
	if p == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.WithDetails(syncerr.ErrDecode, "reason", "unsafe manifest path", "path", p)
	}
	return clean, nil
}

// 🗑️ DeleteObsolete removes paths (relative to dir) and prunes directories
// left empty. Files already gone are not an error. Failures are collected
// per path.
func DeleteObsolete(ctx context.Context, fs afero.Fs, dir string, paths []string) []error {
	logger := zerolog.Ctx(ctx)

	var errs []error
	for _, p := range paths {
		clean, err := normalize(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		full := filepath.Join(dir, filepath.FromSlash(clean))
		if err := fs.Remove(full); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", full).Msg("removing obsolete file")
			errs = append(errs, syncerr.IO("remove", full, err))
			continue
		}
		logger.Debug().Str("path", full).Msg("removed obsolete file")
		prune(fs, dir, filepath.Dir(full))
	}
	return errs
}

// prune removes empty directories from leaf up to, but excluding, root.
func prune(fs afero.Fs, root, leaf string) {
	root = filepath.Clean(root)
	for d := filepath.Clean(leaf); d != root && strings.HasPrefix(d, root+string(filepath.Separator)); d = filepath.Dir(d) {
		entries, err := afero.ReadDir(fs, d)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := fs.Remove(d); err != nil {
			return
		}
	}
}
