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
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	stdmultipart "mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/metrics"
	"github.com/walteh/merginsync/pkg/remote"
	"github.com/walteh/merginsync/pkg/state"
	"github.com/walteh/merginsync/pkg/syncerr"
)

// 🔧 MockAPI is a mock implementation of remote.API
type MockAPI struct {
	mock.Mock
	token string
}

func (m *MockAPI) Authorized() bool              { return m.token != "" }
func (m *MockAPI) ProjectsURL() string           { return "https://mergin.test/v1/project" }
func (m *MockAPI) ProjectURL(name string) string { return "https://mergin.test/v1/project/" + name }

func (m *MockAPI) ListProjects(ctx context.Context) ([]byte, error) {
	result := m.Called(ctx)
	raw, _ := result.Get(0).([]byte)
	return raw, result.Error(1)
}

func (m *MockAPI) ProjectManifest(ctx context.Context, name string) (*remote.Manifest, error) {
	result := m.Called(ctx, name)
	man, _ := result.Get(0).(*remote.Manifest)
	return man, result.Error(1)
}

func (m *MockAPI) FetchFiles(ctx context.Context, name string, files []remote.ManifestEntry) (*remote.Stream, error) {
	result := m.Called(ctx, name, files)
	s, _ := result.Get(0).(*remote.Stream)
	return s, result.Error(1)
}

func (m *MockAPI) DownloadProject(ctx context.Context, name string) (*remote.Stream, error) {
	result := m.Called(ctx, name)
	s, _ := result.Get(0).(*remote.Stream)
	return s, result.Error(1)
}

type part struct {
	name string
	data string
}

func multipartStream(t *testing.T, parts ...part) *remote.Stream {
	t.Helper()
	var buf bytes.Buffer
	w := stdmultipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := w.CreateFormFile("file", p.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &remote.Stream{ContentType: w.FormDataContentType(), Body: io.NopCloser(&buf)}
}

func sum(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	api    *MockAPI
	fs     afero.Fs
	clock  clockwork.FakeClock
	cat    *Catalog
	events chan Event
}

func newHarness(t *testing.T, token string, mod ...func(*Options)) *harness {
	t.Helper()
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	h := &harness{
		t:      t,
		ctx:    logger.WithContext(context.Background()),
		api:    &MockAPI{token: token},
		fs:     afero.NewMemMapFs(),
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)),
		events: make(chan Event, 256),
	}
	return h.open(mod...)
}

func (h *harness) open(mod ...func(*Options)) *harness {
	h.t.Helper()
	opts := Options{
		API:     h.api,
		Fs:      h.fs,
		DataDir: "/data",
		Ignore:  []string{".mergin/**"},
		Clock:   h.clock,
		Metrics: metrics.New(nil),
		Notify:  func(ev Event) { h.events <- ev },
	}
	for _, m := range mod {
		m(&opts)
	}
	cat, err := New(h.ctx, opts)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = cat.Close() })
	h.cat = cat
	return h
}

func (h *harness) wait(req *Request) error {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	err := req.Wait(ctx)
	require.NotErrorIs(h.t, err, context.DeadlineExceeded, "request did not finish")
	return err
}

func (h *harness) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (h *harness) write(path, content string) {
	h.t.Helper()
	require.NoError(h.t, afero.WriteFile(h.fs, path, []byte(content), 0o644))
}

func (h *harness) read(path string) string {
	h.t.Helper()
	raw, err := afero.ReadFile(h.fs, path)
	require.NoError(h.t, err)
	return string(raw)
}

func (h *harness) exists(path string) bool {
	h.t.Helper()
	ok, err := afero.Exists(h.fs, path)
	require.NoError(h.t, err)
	return ok
}

func (h *harness) list(raw string) {
	h.t.Helper()
	h.api.On("ListProjects", mock.Anything).Return([]byte(raw), nil).Once()
	req, err := h.cat.ListProjects(h.ctx)
	require.NoError(h.t, err)
	require.NoError(h.t, h.wait(req))
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func find(evs []Event, kind EventKind) (Event, bool) {
	for _, ev := range evs {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

const alphaListing = `[
	{"name":"alpha","tags":["input_use"],"created":"2024-01-01T00:00:00Z","updated":"2024-03-01T12:00:00Z"},
	{"name":"beta","tags":[],"created":"2024-01-02T00:00:00Z","meta":{"size":3,"files_count":1}}
]`

func TestNew_RequiresOptions(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{API: &MockAPI{}})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{API: &MockAPI{}, Fs: afero.NewMemMapFs()})
	assert.Error(t, err)
}

func TestListProjects_NoToken(t *testing.T) {
	h := newHarness(t, "")

	req, err := h.cat.ListProjects(h.ctx)
	assert.Nil(t, req)
	assert.True(t, errors.Is(err, syncerr.ErrAuth))

	req, err = h.cat.DownloadProject(h.ctx, "alpha")
	assert.Nil(t, req)
	assert.True(t, errors.Is(err, syncerr.ErrAuth))

	h.api.AssertNotCalled(t, "ListProjects", mock.Anything)
	h.api.AssertNotCalled(t, "DownloadProject", mock.Anything, mock.Anything)
	assert.Empty(t, h.drain())
}

func TestListProjects_Success(t *testing.T) {
	h := newHarness(t, "token")
	h.write("/data/beta/data.csv", "abc")

	h.list(alphaListing)

	projects := h.cat.Projects()
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "beta", projects[1].Name)

	assert.Equal(t, NoVersion, projects[0].Status)
	assert.Equal(t, []string{"input_use"}, projects[0].Tags)
	require.NotNil(t, projects[0].ServerUpdatedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), *projects[0].ServerUpdatedAt)

	assert.Equal(t, UpToDate, projects[1].Status, "meta matches the local copy")
	assert.Equal(t, 1, projects[1].FilesCount)

	assert.JSONEq(t, alphaListing, h.read("/data/.merginsync/projects.json"))
	assert.Equal(t, []EventKind{EventListFinished}, kinds(h.drain()))
	assert.Zero(t, h.cat.tracker.Len())
}

func TestListProjects_SeededFromCache(t *testing.T) {
	h := newHarness(t, "token")
	h.list(alphaListing)
	require.NoError(t, h.cat.Close())

	h.open()
	projects := h.cat.Projects()
	require.Len(t, projects, 2, "cache is read back before any request")
	assert.Equal(t, "alpha", projects[0].Name)
}

func TestListProjects_NetworkErrorKeepsCatalog(t *testing.T) {
	h := newHarness(t, "token")
	h.list(alphaListing)
	h.drain()

	h.api.On("ListProjects", mock.Anything).Return(nil, &syncerr.NetworkError{Message: "bad gateway", StatusCode: 502}).Once()
	req, err := h.cat.ListProjects(h.ctx)
	require.NoError(t, err)

	err = h.wait(req)
	var nerr *syncerr.NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "listProjects", nerr.Context)
	assert.Equal(t, 502, nerr.StatusCode)

	ev, ok := find(h.drain(), EventNetworkError)
	require.True(t, ok)
	assert.Equal(t, "bad gateway", ev.Message)

	assert.Len(t, h.cat.Projects(), 2, "previous catalog intact")
	assert.JSONEq(t, alphaListing, h.read("/data/.merginsync/projects.json"))
}

func TestListProjects_InvalidJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "object", payload: `{"not":"a list"}`},
		{name: "null", payload: `null`},
		{name: "empty_body", payload: ``},
		{name: "truncated", payload: `[{"name":"alpha"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "token")
			h.list(alphaListing)
			h.drain()
			cached := h.read("/data/.merginsync/projects.json")

			h.api.On("ListProjects", mock.Anything).Return([]byte(tt.payload), nil).Once()
			req, err := h.cat.ListProjects(h.ctx)
			require.NoError(t, err)

			err = h.wait(req)
			var nerr *syncerr.NetworkError
			require.True(t, errors.As(err, &nerr), "invalid listing should be a network error")
			assert.Equal(t, "listProjects", nerr.Context)
			assert.Contains(t, nerr.Message, "invalid project list")

			assert.Equal(t, cached, h.read("/data/.merginsync/projects.json"), "cache untouched")
			require.Len(t, h.cat.Projects(), 2, "previous catalog kept")
			assert.Equal(t, "alpha", h.cat.Projects()[0].Name)
		})
	}
}

func TestListProjects_Duplicate(t *testing.T) {
	h := newHarness(t, "token")

	gate := make(chan struct{})
	h.api.On("ListProjects", mock.Anything).Run(func(mock.Arguments) { <-gate }).Return([]byte(`[]`), nil).Once()

	first, err := h.cat.ListProjects(h.ctx)
	require.NoError(t, err)

	_, err = h.cat.ListProjects(h.ctx)
	assert.True(t, errors.Is(err, syncerr.ErrDuplicateRequest))

	close(gate)
	require.NoError(t, h.wait(first))
}

func TestDownloadProject_Fresh(t *testing.T) {
	h := newHarness(t, "token")
	h.list(alphaListing)
	h.drain()

	h.api.On("DownloadProject", mock.Anything, "alpha").
		Return(multipartStream(t, part{"a.gpkg", "layer data"}, part{"sub/b.qgs", "project file"}), nil).Once()

	req, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "https://mergin.test/v1/project/alpha", req.Key())
	assert.Equal(t, "alpha", req.Project())
	require.NoError(t, h.wait(req))

	assert.Equal(t, "layer data", h.read("/data/alpha/a.gpkg"))
	assert.Equal(t, "project file", h.read("/data/alpha/sub/b.qgs"))

	p, ok := h.cat.Project("alpha")
	require.True(t, ok)
	assert.Equal(t, UpToDate, p.Status)
	assert.False(t, p.Pending)
	require.NotNil(t, p.LocalUpdatedAt)
	assert.True(t, p.LocalUpdatedAt.Equal(*p.ServerUpdatedAt))

	rec, ok := h.cat.lock.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, 2, rec.FilesCount)
	assert.Equal(t, h.clock.Now(), rec.SyncedAt)

	evs := h.drain()
	assert.Equal(t, []EventKind{EventFileFetched, EventFileFetched, EventDownloadFinished}, kinds(evs))
	assert.Equal(t, "/data/alpha", evs[2].Dir)

	h.api.AssertNotCalled(t, "ProjectManifest", mock.Anything, mock.Anything)

	// a newer server version makes the copy stale again
	h.list(`[{"name":"alpha","created":"2024-01-01T00:00:00Z","updated":"2024-03-05T00:00:00Z"}]`)
	p, _ = h.cat.Project("alpha")
	assert.Equal(t, OutOfDate, p.Status)
	assert.True(t, p.LocalUpdatedAt.Before(*p.ServerUpdatedAt), "local sync version survives the listing")
}

func TestDownloadProject_TwoProjectsConcurrently(t *testing.T) {
	h := newHarness(t, "token")
	h.list(alphaListing)
	h.drain()

	started := make(chan string, 2)
	gate := make(chan struct{})
	for _, name := range []string{"alpha", "beta"} {
		h.api.On("DownloadProject", mock.Anything, name).
			Run(func(mock.Arguments) {
				started <- name
				<-gate
			}).
			Return(multipartStream(t, part{name + ".gpkg", name + " data"}), nil).Once()
	}

	alpha, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)
	beta, err := h.cat.DownloadProject(h.ctx, "beta")
	require.NoError(t, err)

	// both requests are in flight before either may finish
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("downloads did not run concurrently")
		}
	}
	assert.True(t, h.cat.Pending("alpha"))
	assert.True(t, h.cat.Pending("beta"))
	close(gate)

	require.NoError(t, h.wait(alpha))
	require.NoError(t, h.wait(beta))

	for _, name := range []string{"alpha", "beta"} {
		assert.Equal(t, name+" data", h.read("/data/"+name+"/"+name+".gpkg"))
		p, ok := h.cat.Project(name)
		require.True(t, ok)
		assert.Equal(t, UpToDate, p.Status, name)
	}

	reloaded, err := state.Open(h.ctx, h.fs, "/data")
	require.NoError(t, err, "sync record stays readable")
	records := reloaded.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Name)
	assert.Equal(t, "beta", records[1].Name)
}

func TestDownloadProject_RefreshAlpha(t *testing.T) {
	h := newHarness(t, "token")
	h.write("/data/alpha/a.gpkg", "layer data")
	h.write("/data/alpha/c.txt", "stale")
	h.write("/data/alpha/.mergin/meta.json", "{}")
	h.list(alphaListing)
	h.drain()

	h.api.On("ProjectManifest", mock.Anything, "alpha").Return(&remote.Manifest{Files: []remote.ManifestEntry{
		{Path: "a.gpkg", Checksum: sum("layer data")},
		{Path: "b.qgs", Checksum: "def"},
	}}, nil).Once()
	h.api.On("FetchFiles", mock.Anything, "alpha", []remote.ManifestEntry{{Path: "b.qgs", Checksum: "def"}}).
		Return(multipartStream(t, part{"b.qgs", "new project"}), nil).Once()

	req, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, h.wait(req))

	assert.Equal(t, "new project", h.read("/data/alpha/b.qgs"))
	assert.Equal(t, "layer data", h.read("/data/alpha/a.gpkg"))
	assert.False(t, h.exists("/data/alpha/c.txt"), "obsolete file removed")
	assert.True(t, h.exists("/data/alpha/.mergin/meta.json"), "ignored files untouched")

	evs := h.drain()
	assert.Equal(t, []EventKind{EventNotify, EventFileFetched, EventFileRemoved, EventDownloadFinished}, kinds(evs))
	assert.Equal(t, "c.txt", evs[2].Path)

	p, _ := h.cat.Project("alpha")
	assert.Equal(t, UpToDate, p.Status)
	h.api.AssertNotCalled(t, "DownloadProject", mock.Anything, mock.Anything)
	h.api.AssertExpectations(t)
}

func TestDownloadProject_NothingToFetch(t *testing.T) {
	h := newHarness(t, "token")
	h.write("/data/alpha/a.gpkg", "layer data")

	h.api.On("ProjectManifest", mock.Anything, "alpha").Return(&remote.Manifest{Files: []remote.ManifestEntry{
		{Path: "a.gpkg", Checksum: sum("layer data")},
	}}, nil).Once()

	req, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, h.wait(req))

	h.api.AssertNotCalled(t, "FetchFiles", mock.Anything, mock.Anything, mock.Anything)

	p, ok := h.cat.Project("alpha")
	require.True(t, ok, "unknown projects are added on download")
	assert.Equal(t, UpToDate, p.Status)
}

func TestDownloadProject_Duplicate(t *testing.T) {
	h := newHarness(t, "token")
	h.list(alphaListing)

	gate := make(chan struct{})
	h.api.On("DownloadProject", mock.Anything, "alpha").
		Run(func(mock.Arguments) { <-gate }).
		Return(multipartStream(t, part{"a.gpkg", "layer data"}), nil).Once()

	first, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, h.cat.Pending("alpha"))

	second, err := h.cat.DownloadProject(h.ctx, "alpha")
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, syncerr.ErrDuplicateRequest))

	close(gate)
	require.NoError(t, h.wait(first))
	assert.False(t, h.cat.Pending("alpha"))

	h.api.On("ProjectManifest", mock.Anything, "alpha").Return(&remote.Manifest{Files: []remote.ManifestEntry{
		{Path: "a.gpkg", Checksum: sum("layer data")},
	}}, nil).Once()

	third, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err, "a finished request frees the project")
	require.NoError(t, h.wait(third))
}

func TestDownloadProject_FetchErrorKeepsStatus(t *testing.T) {
	for _, policy := range []DeletePolicy{DeleteAfterFetch, DeleteImmediately} {
		t.Run(string(policy), func(t *testing.T) {
			h := newHarness(t, "token", func(o *Options) { o.DeletePolicy = policy })
			h.write("/data/beta/data.csv", "abc")
			h.write("/data/beta/old.csv", "zz")
			h.list(alphaListing)
			h.drain()

			before, _ := h.cat.Project("beta")
			require.Equal(t, OutOfDate, before.Status)

			h.api.On("ProjectManifest", mock.Anything, "beta").Return(&remote.Manifest{Files: []remote.ManifestEntry{
				{Path: "data.csv", Checksum: "changed"},
			}}, nil).Once()
			h.api.On("FetchFiles", mock.Anything, "beta", mock.Anything).
				Return(nil, &syncerr.NetworkError{Message: "server error", StatusCode: 500}).Once()

			req, err := h.cat.DownloadProject(h.ctx, "beta")
			require.NoError(t, err)

			err = h.wait(req)
			var nerr *syncerr.NetworkError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, "downloadProject", nerr.Context)

			after, _ := h.cat.Project("beta")
			assert.Equal(t, before.Status, after.Status)
			assert.False(t, after.Pending)
			assert.False(t, h.cat.Pending("beta"))

			_, ok := find(h.drain(), EventNetworkError)
			assert.True(t, ok)

			assert.Equal(t, policy == DeleteAfterFetch, h.exists("/data/beta/old.csv"))
			_, recorded := h.cat.lock.Get("beta")
			assert.False(t, recorded)
		})
	}
}

func TestDownloadProject_Cancel(t *testing.T) {
	h := newHarness(t, "token")

	started := make(chan struct{})
	h.api.On("DownloadProject", mock.Anything, "alpha").
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()

	req, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)

	<-started
	req.Cancel()

	err = h.wait(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.cat.Pending("alpha"), "tracker released")
	assert.Zero(t, h.cat.tracker.Len())

	ev, ok := find(h.drain(), EventNotify)
	require.True(t, ok)
	assert.Contains(t, ev.Message, "canceled")
}

func TestDownloadProject_MalformedStream(t *testing.T) {
	h := newHarness(t, "token")
	h.api.On("DownloadProject", mock.Anything, "alpha").
		Return(&remote.Stream{ContentType: "application/json", Body: io.NopCloser(bytes.NewReader(nil))}, nil).Once()

	req, err := h.cat.DownloadProject(h.ctx, "alpha")
	require.NoError(t, err)

	err = h.wait(req)
	assert.True(t, errors.Is(err, syncerr.ErrDecode))

	p, _ := h.cat.Project("alpha")
	assert.Equal(t, NoVersion, p.Status)
	assert.False(t, p.Pending)
}

func TestDownloadProject_InvalidName(t *testing.T) {
	h := newHarness(t, "token")
	for _, name := range []string{"", "../escape", "/abs", "a/../../b"} {
		_, err := h.cat.DownloadProject(h.ctx, name)
		assert.Error(t, err, "name %q", name)
	}
	assert.Zero(t, h.cat.tracker.Len())
}

func TestRefreshLocalState(t *testing.T) {
	h := newHarness(t, "token")
	h.list(alphaListing)
	h.drain()

	p, _ := h.cat.Project("beta")
	require.Equal(t, NoVersion, p.Status)

	h.write("/data/beta/data.csv", "abc")
	require.NoError(t, h.cat.RefreshLocalState(h.ctx, "beta"))

	p, _ = h.cat.Project("beta")
	assert.Equal(t, UpToDate, p.Status)

	ev, ok := find(h.drain(), EventStatusChanged)
	require.True(t, ok)
	assert.Equal(t, "beta", ev.Project)

	require.NoError(t, h.cat.RefreshLocalState(h.ctx, "beta"))
	assert.Empty(t, h.drain(), "no event without a change")
}

func TestClose(t *testing.T) {
	h := newHarness(t, "token")
	require.NoError(t, h.cat.Close())
	require.NoError(t, h.cat.Close())

	_, err := h.cat.ListProjects(h.ctx)
	assert.True(t, errors.Is(err, syncerr.ErrClosed))
	_, err = h.cat.DownloadProject(h.ctx, "alpha")
	assert.True(t, errors.Is(err, syncerr.ErrClosed))
}

func TestClose_StartAfterClose(t *testing.T) {
	h := newHarness(t, "token")

	req := newRequest(h.ctx, opList, h.api.ProjectsURL(), "", h.clock.Now())
	require.NoError(t, h.cat.tracker.TryAcquire(req.key, ""))
	require.NoError(t, h.cat.Close())

	err := h.cat.start(req, func(*Request) { t.Error("worker started on a closed catalog") })
	assert.True(t, errors.Is(err, syncerr.ErrClosed))
	assert.Zero(t, h.cat.tracker.Len(), "tracker entry released")
	assert.True(t, errors.Is(req.Err(), syncerr.ErrClosed))
}

func TestClose_RacingRequests(t *testing.T) {
	h := newHarness(t, "token")
	h.api.On("DownloadProject", mock.Anything, mock.Anything).Return(nil, errors.New("offline")).Maybe()

	names := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	reqs := make(chan *Request, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := h.cat.DownloadProject(h.ctx, name)
			if err != nil {
				assert.True(t, errors.Is(err, syncerr.ErrClosed), "unexpected error %v", err)
				return
			}
			reqs <- req
		}()
	}
	require.NoError(t, h.cat.Close())
	wg.Wait()
	close(reqs)

	for req := range reqs {
		select {
		case <-req.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("request %s never finished", req.Key())
		}
	}
	assert.Zero(t, h.cat.tracker.Len())
}
