package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/eventstore"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/pipeline"
	"git.home.luguber.info/inful/buildworker/internal/task"
)

type fakeRunner struct {
	mu    sync.Mutex
	tasks []*task.BuildTask
	done  chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, t *task.BuildTask) (*pipeline.Result, error) {
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return &pipeline.Result{}, nil
}

type fakePublisher struct {
	calls []string
}

func (f *fakePublisher) PublishImage(_ context.Context, t *task.PublishTask) error {
	f.calls = append(f.calls, "publish_image:"+string(t.Dest))
	return nil
}

func (f *fakePublisher) PublishSlug(_ context.Context, t *task.PublishTask) error {
	f.calls = append(f.calls, "publish_slug:"+string(t.Dest))
	return nil
}

func (f *fakePublisher) DeployImage(_ context.Context, t *task.DeployTask) error {
	f.calls = append(f.calls, "deploy_image:"+t.Image)
	return nil
}

func (f *fakePublisher) DeploySlug(_ context.Context, t *task.DeployTask) error {
	f.calls = append(f.calls, "deploy_slug:"+t.ServiceKey)
	return nil
}

func (f *fakePublisher) ImportImage(_ context.Context, t *task.ImportTask) error {
	f.calls = append(f.calls, "import:"+t.Image)
	return nil
}

const buildBody = `{"tenant_id":"t1","service_id":"s1","service_alias":"gr1","tenant_name":"acme",
"repo_url":"https://git.example.com/acme/shop.git","deploy_version":"v1","action":"deploy","event_id":"e1"}`

func envelope(t *testing.T, typ TaskType, body string) []byte {
	t.Helper()
	data, err := json.Marshal(Envelope{Type: typ, Body: json.RawMessage(body)})
	require.NoError(t, err)
	return data
}

func TestDecodeEnvelopeRejectsBadInput(t *testing.T) {
	for name, data := range map[string]string{
		"malformed":    `{`,
		"unknown type": `{"type":"reboot","body":{}}`,
		"no body":      `{"type":"share_image"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
		})
	}
}

func TestDispatchRoutesByType(t *testing.T) {
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	d := NewDispatcher(runner, pub)
	ctx := context.Background()

	cases := []struct {
		typ  TaskType
		body string
	}{
		{TypeBuild, buildBody},
		{TypeShareImage, `{"service_key":"k","app_version":"1","image":"goodrain.me/a:1","dest":"ys"}`},
		{TypeShareSlug, `{"service_key":"k","app_version":"1","tenant_id":"t","service_id":"s","deploy_version":"v","dest":"yb"}`},
		{TypeDeployImage, `{"image":"goodrain.me/a:1","tenant_name":"acme","service_alias":"gr1","event_id":"e"}`},
		{TypeDeploySlug, `{"app_key":"k","app_version":"1","deploy_version":"v","tenant_name":"acme","service_alias":"gr1","event_id":"e"}`},
		{TypeImportImage, `{"image":"nginx:1","tenant_name":"acme","service_alias":"gr1","event_id":"e"}`},
	}
	for _, c := range cases {
		env, err := DecodeEnvelope(envelope(t, c.typ, c.body))
		require.NoError(t, err)
		require.NoError(t, d.Dispatch(ctx, env), c.typ)
	}

	require.Len(t, runner.tasks, 1)
	assert.Equal(t, "s1", runner.tasks[0].ServiceID)
	assert.Equal(t, []string{
		"publish_image:ys",
		"publish_slug:yb",
		"deploy_image:goodrain.me/a:1",
		"deploy_slug:k",
		"import:nginx:1",
	}, pub.calls)
}

func TestDispatchValidatesBody(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, &fakePublisher{})
	env, err := DecodeEnvelope(envelope(t, TypeBuild, `{"tenant_id":"t1"}`))
	require.NoError(t, err)
	err = d.Dispatch(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestDispatchDropsExpiredBuildTasks(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDispatcher(runner, &fakePublisher{})
	queued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return queued.Add(61 * time.Second) }

	env := &Envelope{Type: TypeBuild, Body: json.RawMessage(buildBody), Time: queued}
	err := d.Dispatch(context.Background(), env)
	require.ErrorIs(t, err, ErrTaskExpired)
	assert.True(t, errors.HasCategory(err, errors.CategoryDaemon))
	assert.Empty(t, runner.tasks)

	fresh := strings.Replace(buildBody, `"event_id":"e1"`, `"event_id":"e1","expire_seconds":120`, 1)
	env = &Envelope{Type: TypeBuild, Body: json.RawMessage(fresh), Time: queued}
	require.NoError(t, d.Dispatch(context.Background(), env))

	env = &Envelope{Type: TypeBuild, Body: json.RawMessage(buildBody)}
	require.NoError(t, d.Dispatch(context.Background(), env), "unstamped envelopes never expire")
	assert.Len(t, runner.tasks, 2)
}

func newTestDaemon(runner *fakeRunner) *Daemon {
	return New(Options{
		Config:     config.Default(),
		Dispatcher: NewDispatcher(runner, &fakePublisher{}),
	})
}

func TestRunProcessesSubmittedTasks(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{}, 1)}
	d := newTestDaemon(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	env, err := d.Submit(envelope(t, TypeBuild, buildBody))
	require.NoError(t, err)
	assert.Equal(t, TypeBuild, env.Type)

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not processed")
	}
	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, int64(1), d.Snapshot().Processed)
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	d := newTestDaemon(&fakeRunner{})
	data := envelope(t, TypeBuild, buildBody)
	for range queueSize {
		_, err := d.Submit(data)
		require.NoError(t, err)
	}
	_, err := d.Submit(data)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryDaemon))
}

func TestHTTPIntake(t *testing.T) {
	d := newTestDaemon(&fakeRunner{})
	d.status.Store(StatusRunning)
	srv := httptest.NewServer(NewHTTPServer("", prom.NewRegistry(), nil).Handler(d))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/tasks", "application/json",
		strings.NewReader(string(envelope(t, TypeBuild, buildBody))))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, d.Snapshot().Queued)

	resp, err = http.Post(srv.URL+"/v1/tasks", "application/json", strings.NewReader(`{"type":"reboot","body":{}}`))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["code"])

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type fakeDeleter struct {
	deleted []string
}

func (f *fakeDeleter) Host() string { return "goodrain.me" }

func (f *fakeDeleter) DeleteImage(_ context.Context, repo, tag string) error {
	f.deleted = append(f.deleted, repo+":"+tag)
	return nil
}

func TestJanitorSweep(t *testing.T) {
	ctx := context.Background()
	store, err := eventstore.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	record := func(kind, path string, age time.Duration) {
		_, err := store.RecordVersion(ctx, eventstore.Version{
			TenantID: "t", ServiceID: "s1", EventID: path, Kind: kind, Path: path,
			Status: eventstore.VersionSuccess, CreatedAt: old.Add(age),
		})
		require.NoError(t, err)
	}
	slugs := make([]string, 3)
	for i := range slugs {
		slugs[i] = filepath.Join(dir, "v"+string(rune('1'+i))+".tgz")
		require.NoError(t, os.WriteFile(slugs[i], []byte("x"), 0o644))
		record("code", slugs[i], time.Duration(i)*time.Minute)
	}
	record("image", "goodrain.me/abc_acme_shop:v0", -time.Hour)
	record("image", "goodrain.me/runner:latest", -2*time.Hour)
	record("image", "hub.example.com/market/shop:v0", -3*time.Hour)

	deleter := &fakeDeleter{}
	j := NewJanitor(store, deleter, 2, 24*time.Hour, nil)
	removed, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	_, err = os.Stat(slugs[0])
	assert.True(t, os.IsNotExist(err), "oldest slug beyond the keep window is removed")
	for _, kept := range slugs[1:] {
		_, err = os.Stat(kept)
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"abc_acme_shop:v0"}, deleter.deleted)

	removed, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestJanitorConfigureChangesWindow(t *testing.T) {
	ctx := context.Background()
	store, err := eventstore.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.RecordVersion(ctx, eventstore.Version{ServiceID: "s1", Kind: "code",
		Path: filepath.Join(t.TempDir(), "gone.tgz"), Status: eventstore.VersionSuccess,
		CreatedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	j := NewJanitor(store, nil, 0, 24*time.Hour, nil)
	removed, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "inside retention")

	j.Configure(0, time.Minute)
	removed, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestConfigWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildworker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  keep_versions: 3\n"), 0o644))

	var keep atomic.Int64
	cw, err := NewConfigWatcher(path, func(_ context.Context, cfg *config.Config) error {
		keep.Store(int64(cfg.Daemon.KeepVersions))
		return nil
	})
	require.NoError(t, err)
	cw.debounceTime = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer func() { _ = cw.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  keep_versions: 9\n"), 0o644))
	assert.Eventually(t, func() bool { return keep.Load() == 9 }, 5*time.Second, 20*time.Millisecond)
}

func TestReloadAppliesJanitorSettings(t *testing.T) {
	j := NewJanitor(nil, nil, 5, time.Hour, nil)
	d := New(Options{Config: config.Default(), Janitor: j, Dispatcher: NewDispatcher(&fakeRunner{}, &fakePublisher{})})

	cfg := config.Default()
	cfg.Daemon.KeepVersions = 2
	cfg.Daemon.ArtifactRetention = "10m"
	require.NoError(t, d.Reload(context.Background(), cfg))

	keep, retention := j.limits()
	assert.Equal(t, 2, keep)
	assert.Equal(t, 10*time.Minute, retention)
}
