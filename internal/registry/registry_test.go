package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

const testDigest = "sha256:6c3c624b58dbbcd3c0dd82b4c53f04194d1247c6eebdaab7c610cf7d66709b3b"

func newTestRegistry(t *testing.T) (*Client, *[]string) {
	t.Helper()
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/v2/app/manifests/v1":
			assert.Contains(t, r.Header.Get("Accept"), "manifest.v2+json")
			w.Header().Set("Docker-Content-Digest", testDigest)
		case r.Method == http.MethodHead && r.URL.Path == "/v2/bad/manifests/v1":
			w.Header().Set("Docker-Content-Digest", "not-a-digest")
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v2/app/manifests/"):
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/v2/app/manifests/"))
			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/v2/broken/manifests/v1":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return New(strings.TrimPrefix(srv.URL, "http://"), Options{Insecure: true}), &deleted
}

func TestImageExists(t *testing.T) {
	c, _ := newTestRegistry(t)
	ctx := context.Background()

	ok, err := c.ImageExists(ctx, "app", "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ImageExists(ctx, "app", "v2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.ImageExists(ctx, "broken", "v1")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRegistry))
}

func TestManifestDigest(t *testing.T) {
	c, _ := newTestRegistry(t)
	d, err := c.ManifestDigest(context.Background(), "app", "v1")
	require.NoError(t, err)
	assert.Equal(t, testDigest, d.String())
	assert.Equal(t, "sha256", string(d.Algorithm()))

	_, err = c.ManifestDigest(context.Background(), "bad", "v1")
	assert.Error(t, err)
}

func TestDeleteImageUsesDigest(t *testing.T) {
	c, deleted := newTestRegistry(t)
	require.NoError(t, c.DeleteImage(context.Background(), "app", "v1"))
	assert.Equal(t, []string{testDigest}, *deleted)
}

func TestExistsByReference(t *testing.T) {
	c, _ := newTestRegistry(t)
	ok, err := c.Exists(context.Background(), c.Host()+"/app:v1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseReference(t *testing.T) {
	cases := map[string]Reference{
		"alpine":                      {Name: "alpine", Tag: "latest"},
		"alpine:3.20":                 {Name: "alpine", Tag: "3.20"},
		"goodrain.me/abc_acme_web:v1": {Host: "goodrain.me", Name: "abc_acme_web", Tag: "v1"},
		"hub.example.com/team/web:2":  {Host: "hub.example.com", Namespace: "team", Name: "web", Tag: "2"},
		"localhost:5000/web":          {Host: "localhost:5000", Name: "web", Tag: "latest"},
		"localhost/web:1":             {Host: "localhost", Name: "web", Tag: "1"},
		"library/nginx":               {Namespace: "library", Name: "nginx", Tag: "latest"},
		"acme/tools/cli:0.3":          {Namespace: "acme/tools", Name: "cli", Tag: "0.3"},
		"registry:5000/team/web:2":    {Host: "registry:5000", Namespace: "team", Name: "web", Tag: "2"},
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseReference(in), in)
	}
}

func TestRename(t *testing.T) {
	assert.Equal(t, "hub.example.com/market/web:2", Rename("goodrain.me/web:2", "hub.example.com", "market"))
	assert.Equal(t, "goodrain.me/web:2", Rename("hub.example.com/market/web:2", "goodrain.me", ""))
	assert.Equal(t, "goodrain.me/nginx:1.25", Rename("library/nginx:1.25", "goodrain.me", ""))
	assert.Equal(t, "library/nginx:latest", ParseReference("library/nginx").String())
}
