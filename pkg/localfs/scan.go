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

package localfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// 📊 Summary aggregates a directory walk.
type Summary struct {
	Files int   // number of regular files
	Size  int64 // sum of file sizes in bytes
}

// Exists reports whether the walk found at least one file.
func (s Summary) Exists() bool {
	return s.Files > 0
}

// ListFiles returns every file under dir as a slash separated path relative
// to dir, sorted. Directories are not listed. Paths matching one of the
// ignore globs are skipped. A missing dir yields an empty list.
func ListFiles(fs afero.Fs, dir string, ignore ...string) ([]string, error) {
	var files []string
	err := walk(fs, dir, ignore, func(rel string, info os.FileInfo) {
		files = append(files, rel)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// TotalSize returns the sum of file sizes under dir.
func TotalSize(fs afero.Fs, dir string, ignore ...string) (int64, error) {
	sum, err := Stat(fs, dir, ignore...)
	if err != nil {
		return 0, err
	}
	return sum.Size, nil
}

// Stat counts files and bytes under dir in a single walk.
func Stat(fs afero.Fs, dir string, ignore ...string) (Summary, error) {
	var sum Summary
	err := walk(fs, dir, ignore, func(rel string, info os.FileInfo) {
		sum.Files++
		sum.Size += info.Size()
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Ignored reports whether rel matches any of the globs.
func Ignored(rel string, ignore []string) bool {
	for _, pattern := range ignore {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

func walk(fs afero.Fs, dir string, ignore []string, fn func(rel string, info os.FileInfo)) error {
	if _, err := fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Errorf("stat %s: %w", dir, err)
	}

	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Ignored(rel, ignore) {
			return nil
		}
		fn(rel, info)
		return nil
	})
	if err != nil {
		return errors.Errorf("walking %s: %w", dir, err)
	}
	return nil
}
