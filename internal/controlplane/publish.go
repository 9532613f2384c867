package controlplane

import (
	"context"
	"net/http"
)

// PublishPayload is the body of a publish callback.
type PublishPayload struct {
	ServiceKey string `json:"service_key"`
	AppVersion string `json:"app_version"`
	Image      string `json:"image"`
	Slug       string `json:"slug"`
	DestYB     bool   `json:"dest_yb"`
	DestYS     bool   `json:"dest_ys"`
	ShareID    string `json:"share_id,omitempty"`
}

// PublishNotifier delivers the terminal publish callback.
type PublishNotifier struct {
	c *Client
}

func NewPublishNotifier(c *Client) *PublishNotifier { return &PublishNotifier{c: c} }

func (n *PublishNotifier) PublishSuccess(ctx context.Context, p PublishPayload) error {
	return n.c.call(ctx, "service_publish_success", http.MethodPost, "/v2/builder/publish/success", p)
}

func (n *PublishNotifier) PublishFailure(ctx context.Context, p PublishPayload) error {
	return n.c.call(ctx, "service_publish_failure", http.MethodPost, "/v2/builder/publish/failure", p)
}
