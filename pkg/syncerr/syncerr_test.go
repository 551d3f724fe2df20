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

package syncerr

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestNetwork(t *testing.T) {
	t.Run("wraps_plain_error", func(t *testing.T) {
		nerr := Network(errors.New("connection refused"), "listProjects")
		require.NotNil(t, nerr)
		assert.Equal(t, "listProjects", nerr.Context)
		assert.Equal(t, "network error in listProjects(): connection refused", nerr.Error())
	})

	t.Run("keeps_status_code", func(t *testing.T) {
		base := &NetworkError{Message: "404 Not Found", StatusCode: 404}
		wrapped := errors.Errorf("getting manifest: %w", base)

		nerr := Network(wrapped, "downloadProject")
		assert.Equal(t, 404, nerr.StatusCode)
		assert.Equal(t, "downloadProject", nerr.Context)
		assert.Equal(t, "404 Not Found", nerr.Message)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Network(nil, "listProjects"))
	})

	t.Run("canceled", func(t *testing.T) {
		nerr := Network(errors.Errorf("get: %w", context.Canceled), "downloadProject")
		assert.True(t, nerr.Canceled())
	})
}

func TestFileErrorMatchesIO(t *testing.T) {
	err := errors.Errorf("decoding: %w", IO("write", "a.gpkg", os.ErrPermission))

	assert.True(t, errors.Is(err, ErrIO), "file errors should match ErrIO")
	assert.True(t, errors.Is(err, os.ErrPermission), "file errors should unwrap to the cause")
	assert.False(t, errors.Is(err, ErrDecode))

	var ferr *FileError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "a.gpkg", ferr.Path)
}
