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

package watch

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ⏱️ Debouncer collects names and releases them as one sorted batch once
// no new name arrived for the quiet period.
type Debouncer struct {
	clock clockwork.Clock
	quiet time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   clockwork.Timer

	out       chan []string
	done      chan struct{}
	closeOnce sync.Once
}

// NewDebouncer creates a debouncer. A nil clock uses the real one.
func NewDebouncer(clock clockwork.Clock, quiet time.Duration) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		clock:   clock,
		quiet:   quiet,
		pending: map[string]struct{}{},
		out:     make(chan []string, 1),
		done:    make(chan struct{}),
	}
}

// C delivers batches.
func (d *Debouncer) C() <-chan []string {
	return d.out
}

// Add records name and restarts the quiet period.
func (d *Debouncer) Add(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed() {
		return
	}

	d.pending[name] = struct{}{}
	if d.timer == nil {
		d.timer = d.clock.NewTimer(d.quiet)
		go d.fire(d.timer)
		return
	}
	d.timer.Reset(d.quiet)
}

func (d *Debouncer) fire(t clockwork.Timer) {
	select {
	case <-t.Chan():
	case <-d.done:
		t.Stop()
		return
	}

	// mu is held through the send so Close can drain whatever got through
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed() {
		return
	}

	batch := make([]string, 0, len(d.pending))
	for name := range d.pending {
		batch = append(batch, name)
	}
	d.pending = map[string]struct{}{}
	d.timer = nil
	sort.Strings(batch)

	select {
	case d.out <- batch:
	case <-d.done:
	}
}

func (d *Debouncer) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Close drops pending names and stops delivery. A batch not yet received
// is discarded.
func (d *Debouncer) Close() {
	d.closeOnce.Do(func() {
		close(d.done)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.pending = map[string]struct{}{}
		select {
		case <-d.out:
		default:
		}
	})
}
