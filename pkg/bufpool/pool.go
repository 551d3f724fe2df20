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

// Package bufpool recycles fixed-size read buffers between concurrent decoders.
package bufpool

import "sync"

// Pool hands out byte slices of exactly Size bytes.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a pool of size-byte buffers. It panics when size is not positive.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of exactly Size bytes.
func (p *Pool) Get() []byte {
	b := *(p.pool.Get().(*[]byte))
	if cap(b) < p.size {
		return make([]byte, p.size)
	}
	return b[:p.size]
}

// Put returns buf to the pool. Buffers smaller than Size are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Size returns the buffer size.
func (p *Pool) Size() int {
	return p.size
}
