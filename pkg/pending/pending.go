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

// Package pending tracks in-flight requests so a project is never
// synchronized twice at the same time.
package pending

import (
	"sort"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/syncerr"
)

// 🔒 Tracker maps a request key (the target URL) to the project it serves.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	byKey  map[string]string
	byName map[string]string
}

// 🏭 New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		byKey:  make(map[string]string),
		byName: make(map[string]string),
	}
}

// TryAcquire registers key for project name. It fails with
// syncerr.ErrDuplicateRequest when key is already held, or when another key
// is held for the same non-empty project name.
func (t *Tracker) TryAcquire(key, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if holder, ok := t.byKey[key]; ok {
		return errors.WithDetails(syncerr.ErrDuplicateRequest, "key", key, "project", holder)
	}
	if name != "" {
		if other, ok := t.byName[name]; ok {
			return errors.WithDetails(syncerr.ErrDuplicateRequest, "key", other, "project", name)
		}
		t.byName[name] = key
	}
	t.byKey[key] = name
	return nil
}

// Release drops key. Releasing an unknown key is a no-op.
func (t *Tracker) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name, ok := t.byKey[key]
	if !ok {
		return
	}
	delete(t.byKey, key)
	if name != "" && t.byName[name] == key {
		delete(t.byName, name)
	}
}

// Pending reports whether a request for project name is in flight.
func (t *Tracker) Pending(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byName[name]
	return ok
}

// Len returns the number of held keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

// Keys returns the held keys, sorted.
func (t *Tracker) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
