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

// Package watch turns file system activity below the data directory into
// batches of project names whose local state may have changed.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/localfs"
)

// DefaultQuiet is the debounce period used when Options.Quiet is zero.
const DefaultQuiet = 2 * time.Second

var fs = afero.NewOsFs()

// Options configures a Watcher.
type Options struct {
	// Ignore holds doublestar globs, relative to the data directory.
	Ignore []string
	Clock  clockwork.Clock
	Quiet  time.Duration
	// Resolve maps a slash separated path below the data directory to its
	// project. The default takes the first path segment.
	Resolve func(rel string) (string, bool)
}

// 👀 Watcher reports which projects saw file activity.
type Watcher struct {
	root    string
	ignore  []string
	resolve func(string) (string, bool)

	fsw  *fsnotify.Watcher
	deb  *Debouncer
	done chan struct{}
}

// 🏭 New starts watching root and every directory below it.
func New(ctx context.Context, root string, opts Options) (*Watcher, error) {
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.Resolve == nil {
		opts.Resolve = FirstSegment
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		root:    filepath.Clean(root),
		ignore:  opts.Ignore,
		resolve: opts.Resolve,
		fsw:     fsw,
		deb:     NewDebouncer(opts.Clock, opts.Quiet),
		done:    make(chan struct{}),
	}

	if err := w.addTree(w.root); err != nil {
		// release the handles of paths added so far
		if cerr := fsw.Close(); cerr != nil {
			zerolog.Ctx(ctx).Warn().Err(cerr).Msg("closing file watcher")
		}
		return nil, err
	}

	go w.loop(ctx)
	return w, nil
}

// Changes delivers sorted batches of project names.
func (w *Watcher) Changes() <-chan []string {
	return w.deb.C()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.deb.Close()
	err := w.fsw.Close()
	<-w.done
	if err != nil {
		return errors.Errorf("closing watcher: %w", err)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	logger := zerolog.Ctx(ctx)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("file watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rel, ok := w.relative(ev.Name)
	if !ok {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if fi, err := fs.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("path", ev.Name).Msg("watching new directory")
			}
		}
	}

	if project, ok := w.resolve(rel); ok {
		zerolog.Ctx(ctx).Trace().Str("path", rel).Str("project", project).Str("op", ev.Op.String()).Msg("file activity")
		w.deb.Add(project)
	}
}

// relative returns the slash path of name below root, or false when the
// path is outside root or ignored.
func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if internal(rel) || localfs.Ignored(rel, w.ignore) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) addTree(dir string) error {
	paths, err := pathsToWatch(w.root, dir, w.ignore)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := w.fsw.Add(p); err != nil {
			return errors.Errorf("watching %q: %w", p, err)
		}
	}
	return nil
}

// pathsToWatch lists dir and its subdirectories. fsnotify is not recursive,
// so every directory needs its own watch.
func pathsToWatch(root, dir string, ignore []string) ([]string, error) {
	if ok, _ := afero.DirExists(fs, dir); !ok {
		return nil, nil
	}

	var paths []string
	err := afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.Errorf("walking %q: %w", path, err)
		}
		if !fi.IsDir() {
			return nil
		}
		if path != root {
			rel, rerr := filepath.Rel(root, path)
			if rerr != nil {
				return errors.Errorf("relative path: %w", rerr)
			}
			rel = filepath.ToSlash(rel)
			if internal(rel) || localfs.Ignored(rel, ignore) {
				return filepath.SkipDir
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// internal reports bookkeeping files the client writes itself.
func internal(rel string) bool {
	return rel == ".merginsync" || strings.HasPrefix(rel, ".merginsync/") || strings.HasPrefix(rel, ".merginsync.lock")
}

// FirstSegment maps "alpha/sub/file" to "alpha".
func FirstSegment(rel string) (string, bool) {
	first, _, _ := strings.Cut(rel, "/")
	if first == "" {
		return "", false
	}
	return first, true
}

// LongestPrefix resolves paths against known project names, which may
// themselves contain slashes.
func LongestPrefix(names func() []string) func(string) (string, bool) {
	return func(rel string) (string, bool) {
		best := ""
		for _, n := range names() {
			if (rel == n || strings.HasPrefix(rel, n+"/")) && len(n) > len(best) {
				best = n
			}
		}
		return best, best != ""
	}
}
