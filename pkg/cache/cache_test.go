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

package cache

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("persist_then_reload", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		c := New(fs, "/data/.merginsync/projects.json")

		raw := []byte(`[{"name":"alpha"}]`)
		require.True(t, c.Persist(ctx, raw), "persist should succeed")
		assert.Equal(t, raw, c.Reload(ctx))

		exists, err := afero.Exists(fs, "/data/.merginsync/projects.json.tmp")
		require.NoError(t, err)
		assert.False(t, exists, "temp file should be renamed away")
	})

	t.Run("overwrite", func(t *testing.T) {
		c := New(afero.NewMemMapFs(), "/cache.json")
		require.True(t, c.Persist(ctx, []byte("old")))
		require.True(t, c.Persist(ctx, []byte("new")))
		assert.Equal(t, []byte("new"), c.Reload(ctx))
	})

	t.Run("reload_missing", func(t *testing.T) {
		c := New(afero.NewMemMapFs(), "/nothing.json")
		assert.Empty(t, c.Reload(ctx))
	})

	t.Run("persist_read_only", func(t *testing.T) {
		c := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data/projects.json")
		assert.False(t, c.Persist(ctx, []byte("[]")), "persist should report failure")
		assert.Empty(t, c.Reload(ctx))
	})
}
