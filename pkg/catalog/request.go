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

package catalog

import (
	"context"
	"sync"
	"time"
)

const (
	opList     = "listProjects"
	opDownload = "downloadProject"
)

// 🎫 Request is a handle on one in-flight remote operation.
type Request struct {
	key     string
	project string
	op      string
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	err  error
}

func newRequest(ctx context.Context, op, key, project string, started time.Time) *Request {
	ctx, cancel := context.WithCancel(ctx)
	return &Request{
		key:     key,
		project: project,
		op:      op,
		started: started,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Key is the tracker key, the request's target URL.
func (r *Request) Key() string { return r.key }

// Project is empty for listings.
func (r *Request) Project() string { return r.project }

// Done is closed once the request has been fully handled.
func (r *Request) Done() <-chan struct{} { return r.done }

// Err is valid after Done is closed.
func (r *Request) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Cancel aborts the request. Its tracker entry is still released through
// the normal completion path.
func (r *Request) Cancel() { r.cancel() }

// Wait blocks until the request finishes or ctx is done.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Request) finish(err error) {
	r.once.Do(func() {
		r.err = err
		r.cancel()
		close(r.done)
	})
}
