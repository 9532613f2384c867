package publish

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/imagetool"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/slugstore"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// ImageRegistry answers existence checks. *registry.Client implements it.
type ImageRegistry interface {
	Exists(ctx context.Context, image string) (bool, error)
}

// ImageRelay moves images between registries. *imagetool.Docker implements it.
type ImageRelay interface {
	Pull(ctx context.Context, image string, sink imagetool.LineSink) error
	Tag(ctx context.Context, source, target string) error
	Push(ctx context.Context, image string, sink imagetool.LineSink) error
	Relay(ctx context.Context, source, target string, sink imagetool.LineSink) error
}

// Notifier delivers the terminal publish callback.
type Notifier interface {
	PublishSuccess(ctx context.Context, p controlplane.PublishPayload) error
	PublishFailure(ctx context.Context, p controlplane.PublishPayload) error
}

// VersionReporter records versions and final statuses.
type VersionReporter interface {
	ReportVersion(ctx context.Context, v controlplane.VersionRecord) error
	ReportFinalStatus(ctx context.Context, eventID, status string) error
}

// Rollout starts or upgrades services once an artifact is in place.
type Rollout interface {
	Trigger(ctx context.Context, action, tenantName, serviceAlias, deployVersion, eventID string) error
	StartService(ctx context.Context, tenantName, serviceAlias, eventID string) error
	UpdateImage(ctx context.Context, tenantName, serviceAlias, image string) error
}

// Tier is one replication target. A nil Registry or Slugs disables that half of the tier.
type Tier struct {
	Name      string
	Registry  ImageRegistry
	Host      string
	Namespace string
	Slugs     slugstore.Store
}

func (t Tier) imageEnabled() bool { return t.Registry != nil && t.Host != "" }

// Deps wires a Publisher.
type Deps struct {
	Local     ImageRegistry
	LocalHost string
	Region    Tier // "yb", the local platform tier
	Market    Tier // "ys", the marketplace tier

	Docker      ImageRelay
	Layout      *workspace.Layout
	PublishRoot string

	Notifier Notifier
	Reporter VersionReporter
	Rollout  Rollout

	Events   *eventlog.Sink
	Recorder metrics.Recorder
	Logger   *slog.Logger
}
