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

// Package state keeps the sync record: which server version each local
// project copy was last synced from.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

const (
	// FileName is the lock file name inside the data directory.
	FileName = ".merginsync.lock"

	schemaVersion = "1.0.0"
)

// Lock is the on-disk document.
type Lock struct {
	SchemaVersion string          `json:"schema_version"`
	LastUpdated   time.Time       `json:"last_updated"`
	Projects      []ProjectRecord `json:"projects"`
}

// ProjectRecord is one synced project.
type ProjectRecord struct {
	Name string `json:"name"`
	// ServerUpdated is the catalog "updated" value the copy was synced from.
	ServerUpdated *time.Time `json:"server_updated,omitempty"`
	SyncedAt      time.Time  `json:"synced_at"`
	FilesCount    int        `json:"files_count"`
	Size          int64      `json:"size"`
}

// Store guards a Lock and writes it back atomically.
type Store struct {
	fs   afero.Fs
	path string

	mu   sync.RWMutex
	lock Lock

	// saveMu serializes writers of the temp file and the rename
	saveMu sync.Mutex
}

// 🏭 New returns an empty store for dataDir. Call Load to read it.
func New(fs afero.Fs, dataDir string) *Store {
	return &Store{
		fs:   fs,
		path: filepath.Join(dataDir, FileName),
		lock: Lock{SchemaVersion: schemaVersion},
	}
}

// 📂 Open creates a store and loads it.
func Open(ctx context.Context, fs afero.Fs, dataDir string) (*Store, error) {
	s := New(fs, dataDir)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory record with the file. A missing file yields a clean record.
func (s *Store) Load(ctx context.Context) error {
	zerolog.Ctx(ctx).Debug().Str("path", s.path).Msg("loading state")

	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.lock = Lock{SchemaVersion: schemaVersion}
			s.mu.Unlock()
			return nil
		}
		return errors.Errorf("reading state file: %w", err)
	}

	var lock Lock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return errors.Errorf("parsing state file: %w", err)
	}
	if lock.SchemaVersion == "" {
		lock.SchemaVersion = schemaVersion
	}

	s.mu.Lock()
	s.lock = lock
	s.mu.Unlock()
	return nil
}

// 💾 Save writes the record through a temp file and a rename.
func (s *Store) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	raw, err := json.MarshalIndent(s.lock, "", "\t")
	s.mu.RUnlock()
	if err != nil {
		return errors.Errorf("encoding state: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", s.path).Msg("writing state")

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Errorf("creating state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o644); err != nil {
		return errors.Errorf("writing temp state file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Errorf("renaming temp state file: %w", err)
	}
	return nil
}

// Get returns the record for name.
func (s *Store) Get(name string) (ProjectRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.lock.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return ProjectRecord{}, false
}

// Records returns a copy of every record, sorted by name.
func (s *Store) Records() []ProjectRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProjectRecord, len(s.lock.Projects))
	copy(out, s.lock.Projects)
	return out
}

// Put inserts or replaces rec and saves.
func (s *Store) Put(ctx context.Context, rec ProjectRecord) error {
	s.mu.Lock()
	replaced := false
	for i := range s.lock.Projects {
		if s.lock.Projects[i].Name == rec.Name {
			s.lock.Projects[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.lock.Projects = append(s.lock.Projects, rec)
		sort.Slice(s.lock.Projects, func(i, j int) bool {
			return s.lock.Projects[i].Name < s.lock.Projects[j].Name
		})
	}
	s.lock.LastUpdated = rec.SyncedAt
	s.mu.Unlock()

	return s.Save(ctx)
}

// Remove drops the record for name and saves. Unknown names are a no-op.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	kept := s.lock.Projects[:0]
	found := false
	for _, p := range s.lock.Projects {
		if p.Name == name {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	s.lock.Projects = kept
	s.mu.Unlock()

	if !found {
		return nil
	}
	return s.Save(ctx)
}
