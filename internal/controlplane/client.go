// Package controlplane reports build results to the platform API and triggers rollouts.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/httpclient"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

const apiName = "controlplane"

// Client is the shared transport for every control-plane collaborator.
type Client struct {
	http   *httpclient.Client
	logger *slog.Logger
}

// New builds a Client from cfg. Extra options are appended after the configured ones.
func New(cfg config.ControlPlaneConfig, logger *slog.Logger, extra ...httpclient.Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []httpclient.Option{
		httpclient.WithTimeout(cfg.TimeoutDuration()),
		httpclient.WithRetryPolicy(retry.FromConfig(cfg.Retry)),
		httpclient.WithLogger(logger),
	}
	if cfg.Token != "" {
		opts = append(opts, httpclient.WithBearerToken(cfg.Token))
	}
	opts = append(opts, extra...)
	return &Client{
		http:   httpclient.New(apiName, cfg.BaseURL, opts...),
		logger: logger,
	}
}

func (c *Client) call(ctx context.Context, op, method, endpoint string, body any) error {
	if _, err := c.http.Do(ctx, method, endpoint, body, nil); err != nil {
		b := errors.ControlPlaneError(op+" failed").WithCause(err).WithContext("operation", op)
		if apiErr, ok := httpclient.AsAPIError(err); ok {
			b = b.WithContext("url", apiErr.URL()).
				WithContext("method", apiErr.Method()).
				WithContext("code", apiErr.Code())
		}
		c.logger.Debug("Control plane call failed",
			slog.String("operation", op),
			logfields.Method(method),
			logfields.Error(err))
		return b.Build()
	}
	return nil
}

func servicePath(tenantName, serviceAlias, suffix string) string {
	return fmt.Sprintf("/v2/tenants/%s/services/%s/%s",
		url.PathEscape(tenantName), url.PathEscape(serviceAlias), suffix)
}
