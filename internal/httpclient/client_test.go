package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 1)
}

func TestDoSendsJSONAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/builder/version", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "image", body["type"])
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	c := New("region", srv.URL+"/api/", WithBearerToken("tok"), WithRetryPolicy(fastPolicy()))
	var out map[string]string
	resp, err := c.Do(context.Background(), http.MethodPost, "/v2/builder/version", map[string]string{"type": "image"}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", out["ok"])
}

func TestStatusErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope\nreally", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("region", srv.URL, WithRetryPolicy(fastPolicy()))
	_, err := c.Do(context.Background(), http.MethodPut, "/v2/builder/version/event/e1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "region", apiErr.API())
	assert.Equal(t, http.MethodPut, apiErr.Method())
	assert.Equal(t, http.StatusBadGateway, apiErr.Code())
	assert.Contains(t, apiErr.URL(), "/v2/builder/version/event/e1")
	assert.NotContains(t, apiErr.Body(), "\n")
	assert.False(t, Retryable(err))
}

func TestNetworkErrorIsRetriedTwice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New("registry", addr, WithRetryPolicy(fastPolicy()))
	_, err := c.Do(context.Background(), http.MethodGet, "/v2/", nil, nil)
	require.Error(t, err)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "registry", netErr.API())
	assert.Zero(t, netErr.Code())
	assert.True(t, Retryable(err))
}

func TestTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("region", srv.URL, WithTimeout(20*time.Millisecond), WithRetryPolicy(retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 0)))
	_, err := c.Do(context.Background(), http.MethodGet, "/slow", nil, nil)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, http.MethodGet, timeoutErr.Method())
}

func TestHeadReturnsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.docker.distribution.manifest.v2+json", r.Header.Get("Accept"))
		w.Header().Set("Docker-Content-Digest", "sha256:abc")
	}))
	defer srv.Close()

	c := New("registry", srv.URL)
	h := http.Header{}
	h.Set("Accept", "application/vnd.docker.distribution.manifest.v2+json")
	resp, err := c.DoWithHeaders(context.Background(), http.MethodHead, "/v2/app/manifests/v1", h, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", resp.Header.Get("Docker-Content-Digest"))
}

func TestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New("registry", srv.URL).Do(context.Background(), http.MethodHead, "/v2/x/manifests/y", nil, nil)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestQueryStringPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/things", r.URL.Path)
		assert.Equal(t, "n=1", r.URL.RawQuery)
	}))
	defer srv.Close()

	_, err := New("region", srv.URL).Do(context.Background(), http.MethodGet, "v2/things?n=1", nil, nil)
	require.NoError(t, err)
}
