// Package registry talks to Docker Registry HTTP API v2 endpoints: manifest
// existence, digest lookup and deletion.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	godigest "github.com/opencontainers/go-digest"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/httpclient"
)

const manifestAccept = "application/vnd.docker.distribution.manifest.v2+json, " +
	"application/vnd.oci.image.manifest.v1+json, " +
	"application/vnd.docker.distribution.manifest.list.v2+json, " +
	"application/vnd.oci.image.index.v1+json"

// Client is a registry API client for one host.
type Client struct {
	host string
	http *httpclient.Client
}

// Options configures New.
type Options struct {
	Insecure bool // use plain HTTP
	Username string
	Password string
	Extra    []httpclient.Option
}

// New creates a client for the registry at host.
func New(host string, opts Options) *Client {
	scheme := "https"
	if opts.Insecure {
		scheme = "http"
	}
	httpOpts := append([]httpclient.Option{httpclient.WithBasicAuth(opts.Username, opts.Password)}, opts.Extra...)
	return &Client{
		host: host,
		http: httpclient.New("registry:"+host, scheme+"://"+host, httpOpts...),
	}
}

// Host returns the registry host this client talks to.
func (c *Client) Host() string { return c.host }

func manifestPath(repository, reference string) string {
	return fmt.Sprintf("/v2/%s/manifests/%s", repository, reference)
}

func acceptHeader() http.Header {
	h := http.Header{}
	h.Set("Accept", manifestAccept)
	return h
}

// ImageExists reports whether repository:tag has a manifest. A 404 is (false, nil).
func (c *Client) ImageExists(ctx context.Context, repository, tag string) (bool, error) {
	_, err := c.http.DoWithHeaders(ctx, http.MethodHead, manifestPath(repository, tag), acceptHeader(), nil, nil)
	if err == nil {
		return true, nil
	}
	if httpclient.IsNotFound(err) {
		return false, nil
	}
	return false, errors.RegistryError("manifest lookup failed").
		WithCause(err).
		WithContext("host", c.host).
		WithContext("image", repository+":"+tag).
		Build()
}

// ManifestDigest returns the content digest of repository:tag.
func (c *Client) ManifestDigest(ctx context.Context, repository, tag string) (godigest.Digest, error) {
	resp, err := c.http.DoWithHeaders(ctx, http.MethodHead, manifestPath(repository, tag), acceptHeader(), nil, nil)
	if err != nil {
		return "", errors.RegistryError("manifest digest lookup failed").
			WithCause(err).
			WithContext("host", c.host).
			WithContext("image", repository+":"+tag).
			Build()
	}
	raw := strings.TrimSpace(resp.Header.Get("Docker-Content-Digest"))
	d, err := godigest.Parse(raw)
	if err != nil {
		return "", errors.RegistryError("registry returned an invalid digest").
			WithCause(err).
			WithContext("digest", raw).
			Build()
	}
	return d, nil
}

// DeleteImage deletes the manifest referenced by repository:tag.
func (c *Client) DeleteImage(ctx context.Context, repository, tag string) error {
	d, err := c.ManifestDigest(ctx, repository, tag)
	if err != nil {
		return err
	}
	if _, err := c.http.Do(ctx, http.MethodDelete, manifestPath(repository, d.String()), nil, nil); err != nil {
		return errors.RegistryError("manifest delete failed").
			WithCause(err).
			WithContext("host", c.host).
			WithContext("digest", d.String()).
			Build()
	}
	return nil
}

// Exists reports whether image (a full reference on this client's host) is present.
func (c *Client) Exists(ctx context.Context, image string) (bool, error) {
	ref := ParseReference(image)
	return c.ImageExists(ctx, ref.Repository(), ref.Tag)
}
