package controlplane

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/httpclient"
)

type recordedCall struct {
	Method string
	Path   string
	Body   map[string]any
	Auth   string
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []recordedCall
	status int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Body: body, Auth: r.Header.Get("Authorization")})
	status := f.status
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{}`))
}

func newClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.Default().ControlPlane
	cfg.BaseURL = srv.URL
	cfg.Token = "secret"
	return New(cfg, nil)
}

func TestReporterPayloads(t *testing.T) {
	api := &fakeAPI{}
	r := NewReporter(newClient(t, api))
	ctx := t.Context()

	require.NoError(t, r.ReportVersion(ctx, VersionRecord{
		Type:           VersionImage,
		Path:           "goodrain.me/app:1",
		EventID:        "evt-1",
		CommitMetadata: CommitMetadata{CodeVersion: "abc1234", CodeCommitMsg: "fix", CodeCommitAuthor: "bob"},
	}))
	require.NoError(t, r.ReportFinalStatus(ctx, "evt-1", StatusSuccess))

	require.Len(t, api.calls, 2)
	assert.Equal(t, http.MethodPost, api.calls[0].Method)
	assert.Equal(t, "/v2/builder/version", api.calls[0].Path)
	assert.Equal(t, "image", api.calls[0].Body["type"])
	assert.Equal(t, "abc1234", api.calls[0].Body["code_version"])
	assert.Equal(t, "Bearer secret", api.calls[0].Auth)

	assert.Equal(t, http.MethodPut, api.calls[1].Method)
	assert.Equal(t, "/v2/builder/version/event/evt-1", api.calls[1].Path)
	assert.Equal(t, "success", api.calls[1].Body["final_status"])
}

func TestRolloutTriggerUpgradesForBothActions(t *testing.T) {
	api := &fakeAPI{}
	ro := NewRollout(newClient(t, api))

	for _, action := range []string{"deploy", "upgrade"} {
		require.NoError(t, ro.Trigger(t.Context(), action, "acme", "gr1", "v2", "evt"))
	}
	require.Len(t, api.calls, 2)
	for _, c := range api.calls {
		assert.Equal(t, "/v2/tenants/acme/services/gr1/upgrade", c.Path)
		assert.Equal(t, "v2", c.Body["deploy_version"])
		assert.Equal(t, "evt", c.Body["event_id"])
	}
}

func TestStatusErrorIsClassifiedAndNotRetried(t *testing.T) {
	api := &fakeAPI{status: http.StatusInternalServerError}
	ro := NewRollout(newClient(t, api))

	err := ro.StartService(t.Context(), "acme", "gr1", "evt")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryControlPlane))
	assert.Equal(t, 500, httpclient.StatusCode(err))
	assert.Len(t, api.calls, 1)
}

func TestUpdateServiceMetadataSendsEmptyCollections(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(t, api)

	require.NoError(t, c.UpdateServiceMetadata(t.Context(), "acme", "gr1", ServiceMetadata{Image: "goodrain.me/a:1"}))
	require.Len(t, api.calls, 1)
	assert.Equal(t, "/v2/tenants/acme/services/gr1/build-info", api.calls[0].Path)
	assert.Equal(t, []any{}, api.calls[0].Body["volume_list"])
	assert.Equal(t, map[string]any{}, api.calls[0].Body["port_list"])
}

func TestPublishNotifier(t *testing.T) {
	api := &fakeAPI{}
	n := NewPublishNotifier(newClient(t, api))

	require.NoError(t, n.PublishFailure(t.Context(), PublishPayload{ServiceKey: "k", AppVersion: "1", DestYS: true}))
	require.Len(t, api.calls, 1)
	assert.Equal(t, "/v2/builder/publish/failure", api.calls[0].Path)
	assert.Equal(t, true, api.calls[0].Body["dest_ys"])
}
