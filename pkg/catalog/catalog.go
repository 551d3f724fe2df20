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

// Package catalog keeps the list of remote projects and drives downloads.
//
// All catalog state is owned by one goroutine. Remote round trips, decoding
// and directory walks run on per-request workers that hand their results
// back to the owner, so Notify callbacks and state changes are strictly
// serialized while different projects sync concurrently.
package catalog

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/bufpool"
	"github.com/walteh/merginsync/pkg/cache"
	"github.com/walteh/merginsync/pkg/localfs"
	"github.com/walteh/merginsync/pkg/metrics"
	"github.com/walteh/merginsync/pkg/multipart"
	"github.com/walteh/merginsync/pkg/pending"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/state"
	"github.com/walteh/merginsync/pkg/syncerr"
)

// CacheFile is the catalog cache location relative to the data directory.
const CacheFile = ".merginsync/projects.json"

// DeletePolicy decides when files the server no longer lists are removed.
type DeletePolicy string

const (
	// DeleteAfterFetch removes obsolete files once the fetch succeeded.
	DeleteAfterFetch DeletePolicy = "after_fetch"
	// DeleteImmediately removes them as soon as the diff is known.
	DeleteImmediately DeletePolicy = "immediate"
)

// Options configures a Catalog. API, Fs and DataDir are required.
type Options struct {
	API     remote.API
	Fs      afero.Fs
	DataDir string

	// Ignore holds doublestar globs for local files outside sync.
	Ignore       []string
	DeletePolicy DeletePolicy
	ChunkSize    int

	Clock   clockwork.Clock
	Metrics *metrics.Metrics

	// Notify runs on the owner goroutine. It may start requests but must
	// not block on them or call Close.
	Notify func(Event)
}

// 📚 Catalog is the remote project catalog plus the local sync engine.
type Catalog struct {
	api     remote.API
	fs      afero.Fs
	dataDir string
	ignore  []string
	policy  DeletePolicy
	clock   clockwork.Clock
	metrics *metrics.Metrics
	notify  func(Event)

	cache   *cache.Cache
	lock    *state.Store
	tracker *pending.Tracker
	pool    *bufpool.Pool

	base   context.Context
	cancel context.CancelFunc
	ops    chan func()
	quit   chan struct{}
	exited chan struct{}
	closed atomic.Bool
	once   sync.Once
	wg     sync.WaitGroup
	// life orders wg.Add in start against Close
	life sync.Mutex

	// owner goroutine only
	projects []Project
	index    map[string]int

	snap atomic.Pointer[[]Project]
}

// 🏭 New seeds a catalog from the persisted cache and sync record, then
// starts its owner goroutine. The logger is taken from ctx.
func New(ctx context.Context, opts Options) (*Catalog, error) {
	if opts.API == nil {
		return nil, errors.New("catalog: API is required")
	}
	if opts.Fs == nil {
		return nil, errors.New("catalog: Fs is required")
	}
	if opts.DataDir == "" {
		return nil, errors.New("catalog: DataDir is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = DeleteAfterFetch
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = multipart.DefaultChunkSize
	}

	logger := zerolog.Ctx(ctx)
	base, cancel := context.WithCancel(logger.WithContext(context.Background()))

	c := &Catalog{
		api:     opts.API,
		fs:      opts.Fs,
		dataDir: filepath.Clean(opts.DataDir),
		ignore:  opts.Ignore,
		policy:  opts.DeletePolicy,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		notify:  opts.Notify,
		cache:   cache.New(opts.Fs, filepath.Join(opts.DataDir, filepath.FromSlash(CacheFile))),
		tracker: pending.New(),
		pool:    bufpool.New(opts.ChunkSize),
		base:    base,
		cancel:  cancel,
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
		index:   map[string]int{},
	}

	lock, err := state.Open(ctx, opts.Fs, c.dataDir)
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring unreadable sync record")
		lock = state.New(opts.Fs, c.dataDir)
	}
	c.lock = lock

	if raw := c.cache.Reload(ctx); raw != nil {
		infos, err := remote.ParseProjects(raw)
		if err != nil {
			logger.Warn().Err(err).Str("path", c.cache.Path()).Msg("ignoring unreadable catalog cache")
		} else {
			c.merge(infos, c.scanAll(infos))
			logger.Debug().Int("projects", len(infos)).Msg("catalog seeded from cache")
		}
	}
	c.publish()

	go c.loop()
	return c, nil
}

// Close cancels every in-flight request and stops the owner goroutine.
func (c *Catalog) Close() error {
	c.once.Do(func() {
		c.life.Lock()
		c.closed.Store(true)
		c.life.Unlock()

		c.cancel()
		close(c.quit)
		<-c.exited
		c.wg.Wait()
	})
	return nil
}

func (c *Catalog) loop() {
	defer close(c.exited)
	for {
		select {
		case fn := <-c.ops:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post hands fn to the owner goroutine. It reports false once closed.
func (c *Catalog) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// ProjectDir is where name is synced to.
func (c *Catalog) ProjectDir(name string) string {
	return filepath.Join(c.dataDir, filepath.FromSlash(name))
}

// Projects returns a snapshot of the catalog in server order.
func (c *Catalog) Projects() []Project {
	list := *c.snap.Load()
	out := make([]Project, len(list))
	for i, p := range list {
		out[i] = p.clone()
	}
	return out
}

// Project looks up one entry of the latest snapshot.
func (c *Catalog) Project(name string) (Project, bool) {
	for _, p := range *c.snap.Load() {
		if p.Name == name {
			return p.clone(), true
		}
	}
	return Project{}, false
}

// Pending reports whether a download for name is in flight.
func (c *Catalog) Pending(name string) bool {
	return c.tracker.Pending(name)
}

// 📋 ListProjects refreshes the catalog from the server.
func (c *Catalog) ListProjects(ctx context.Context) (*Request, error) {
	if c.closed.Load() {
		return nil, syncerr.ErrClosed
	}
	if !c.api.Authorized() {
		return nil, errors.WithDetails(syncerr.ErrAuth, "op", opList)
	}

	key := c.api.ProjectsURL()
	if err := c.tracker.TryAcquire(key, ""); err != nil {
		return nil, err
	}

	req := newRequest(c.requestContext(ctx), opList, key, "", c.clock.Now())
	if err := c.start(req, c.runList); err != nil {
		return nil, err
	}
	return req, nil
}

// RefreshLocalState rescans name on disk and updates its status. It blocks
// until the owner applied the result, so it must not be called from Notify.
func (c *Catalog) RefreshLocalState(ctx context.Context, name string) error {
	if c.closed.Load() {
		return syncerr.ErrClosed
	}
	summary, err := localfs.Stat(c.fs, c.ProjectDir(name), c.ignore...)
	if err != nil {
		return errors.Errorf("scanning %s: %w", name, err)
	}

	applied := make(chan struct{})
	if !c.post(func() {
		defer close(applied)
		c.onLocalState(name, summary)
	}) {
		return syncerr.ErrClosed
	}

	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) requestContext(ctx context.Context) context.Context {
	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = zerolog.Ctx(c.base).WithContext(ctx)
	}
	return ctx
}

// start runs work on a worker goroutine tied to the catalog's lifetime.
// It returns ErrClosed, releasing req's tracker entry, when Close won.
func (c *Catalog) start(req *Request, work func(*Request)) error {
	c.life.Lock()
	defer c.life.Unlock()
	if c.closed.Load() {
		c.tracker.Release(req.key)
		req.finish(syncerr.ErrClosed)
		return syncerr.ErrClosed
	}

	stop := context.AfterFunc(c.base, req.cancel)
	c.metrics.SetPending(c.tracker.Len())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer stop()
		work(req)
	}()
	return nil
}

// complete posts the final handler of req. When the owner is gone the
// tracker entry is released here instead.
func (c *Catalog) complete(req *Request, fn func()) {
	if !c.post(fn) {
		c.tracker.Release(req.key)
		req.finish(errors.WithDetails(syncerr.ErrClosed, "op", req.op, "key", req.key))
	}
}

// emit must run on the owner goroutine.
func (c *Catalog) emit(ev Event) {
	if c.notify != nil {
		c.notify(ev)
	}
}

// publish stores a fresh snapshot; owner goroutine only.
func (c *Catalog) publish() {
	list := make([]Project, len(c.projects))
	counts := map[string]int{}
	for i, p := range c.projects {
		list[i] = p.clone()
		counts[p.Status.String()]++
	}
	c.snap.Store(&list)
	c.metrics.SetStatusCounts(counts)
	c.metrics.SetPending(c.tracker.Len())
}

func (c *Catalog) lookup(name string) *Project {
	i, ok := c.index[name]
	if !ok {
		return nil
	}
	return &c.projects[i]
}

func (c *Catalog) record(name string) *state.ProjectRecord {
	rec, ok := c.lock.Get(name)
	if !ok {
		return nil
	}
	return &rec
}

// scanAll walks every listed project directory.
func (c *Catalog) scanAll(infos []remote.ProjectInfo) map[string]localfs.Summary {
	out := make(map[string]localfs.Summary, len(infos))
	for _, info := range infos {
		if validName(info.Name) != nil {
			continue
		}
		s, err := localfs.Stat(c.fs, c.ProjectDir(info.Name), c.ignore...)
		if err != nil {
			continue
		}
		out[info.Name] = s
	}
	return out
}

// merge replaces the catalog with infos in server order. Local knowledge
// (LocalUpdatedAt, Pending) carries over.
func (c *Catalog) merge(infos []remote.ProjectInfo, local map[string]localfs.Summary) {
	projects := make([]Project, 0, len(infos))
	index := make(map[string]int, len(infos))

	for _, info := range infos {
		if info.Name == "" {
			continue
		}
		if _, dup := index[info.Name]; dup {
			continue
		}
		p := projectFromInfo(info)
		rec := c.record(info.Name)

		if old := c.lookup(info.Name); old != nil && old.LocalUpdatedAt != nil {
			p.LocalUpdatedAt = old.LocalUpdatedAt
		} else if rec != nil {
			p.LocalUpdatedAt = syncedVersion(*rec)
		}
		p.Pending = c.tracker.Pending(info.Name)
		p.Status = computeStatus(p, rec, local[info.Name])

		index[info.Name] = len(projects)
		projects = append(projects, p)
	}

	c.projects = projects
	c.index = index
}

func (c *Catalog) onLocalState(name string, local localfs.Summary) {
	p := c.lookup(name)
	if p == nil || p.Pending {
		return
	}
	status := computeStatus(*p, c.record(name), local)
	if status == p.Status {
		return
	}
	p.Status = status
	c.publish()
	c.emit(Event{Kind: EventStatusChanged, Project: name, Message: status.String()})
}

func syncedVersion(rec state.ProjectRecord) *time.Time {
	if rec.ServerUpdated != nil {
		t := *rec.ServerUpdated
		return &t
	}
	t := rec.SyncedAt
	return &t
}

// validName rejects names that would leave the data directory.
func validName(name string) error {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || clean != name {
		return errors.Errorf("invalid project name %q", name)
	}
	return nil
}
