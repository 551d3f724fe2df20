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

package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	p := New(1024)
	assert.Equal(t, 1024, p.Size())

	buf := p.Get()
	assert.Len(t, buf, 1024)

	p.Put(buf[:10])
	again := p.Get()
	assert.Len(t, again, 1024, "resliced buffers come back full size")

	p.Put(make([]byte, 8))
	assert.Len(t, p.Get(), 1024, "short buffers are never handed out")
}

func TestNewPanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}
