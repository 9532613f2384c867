package controlplane

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// Rollout starts or upgrades services after a successful build or sync.
type Rollout struct {
	c *Client
}

func NewRollout(c *Client) *Rollout { return &Rollout{c: c} }

type upgradeBody struct {
	DeployVersion string `json:"deploy_version"`
	EventID       string `json:"event_id"`
}

// Trigger rolls out deployVersion. deploy and upgrade both upgrade the service.
func (r *Rollout) Trigger(ctx context.Context, action, tenantName, serviceAlias, deployVersion, eventID string) error {
	r.c.logger.Debug("Triggering rollout", logfields.Action(action), slog.String("service_alias", serviceAlias))
	return r.c.call(ctx, "upgrade_service", http.MethodPost,
		servicePath(tenantName, serviceAlias, "upgrade"),
		upgradeBody{DeployVersion: deployVersion, EventID: eventID})
}

// StartService starts a service whose artifact was synced from a tier.
func (r *Rollout) StartService(ctx context.Context, tenantName, serviceAlias, eventID string) error {
	return r.c.call(ctx, "start_service", http.MethodPost,
		servicePath(tenantName, serviceAlias, "start"),
		map[string]string{"event_id": eventID})
}

// UpdateImage points a service at a new image.
func (r *Rollout) UpdateImage(ctx context.Context, tenantName, serviceAlias, image string) error {
	return r.c.call(ctx, "update_image", http.MethodPut,
		servicePath(tenantName, serviceAlias, "image"),
		map[string]string{"image": image})
}
