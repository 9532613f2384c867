package publish

import (
	"context"

	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/registry"
	"git.home.luguber.info/inful/buildworker/internal/task"
)

// PublishImage replicates t.Image from the local registry into the tier named by t.Dest.
// The relay is skipped when the tier already holds the image.
func (p *Publisher) PublishImage(ctx context.Context, t *task.PublishTask) error {
	log := p.d.Events.Bind(t.EventID, "publish-image")
	tier := p.tier(t.Dest)
	o := outcome{kind: controlplane.VersionImage, path: t.Image}
	o.payload.Image = t.Image

	log.Info(eventlog.MsgPublishStart, t.Image, string(t.Dest))

	ok, err := p.d.Local.Exists(ctx, t.Image)
	if err != nil || !ok {
		log.Error(eventlog.MsgImageMissing, t.Image, p.d.LocalHost)
		return p.finish(ctx, log, t, o, wrap(ErrImageMissing, err, "image", t.Image))
	}

	if !tier.imageEnabled() {
		if t.Dest == task.DestLocal {
			// the local registry is the yb tier when no mirror is configured
			return p.finish(ctx, log, t, o, nil)
		}
		return p.finish(ctx, log, t, o, wrap(ErrTierDisabled, nil, "tier", tier.Name))
	}

	target := registry.Rename(t.Image, tier.Host, tier.Namespace)
	o.path, o.payload.Image = target, target
	if err := p.replicate(ctx, log, tier, t.Image, target); err != nil {
		return p.finish(ctx, log, t, o, err)
	}
	return p.finish(ctx, log, t, o, nil)
}

// replicate relays source to target unless target already exists in tier.
func (p *Publisher) replicate(ctx context.Context, log *eventlog.Logger, tier Tier, source, target string) error {
	present, err := tier.Registry.Exists(ctx, target)
	if err != nil {
		p.d.Logger.Warn("Tier existence check failed, relaying anyway",
			logfields.Tier(tier.Name), logfields.Image(target), logfields.Error(err))
	}
	if present {
		p.d.Logger.Debug("Image already present in tier", logfields.Tier(tier.Name), logfields.Image(target))
		return nil
	}
	log.Status(eventlog.StatusPushing, eventlog.MsgImagePushing, target)
	if err := p.d.Docker.Relay(ctx, source, target, log.Output); err != nil {
		return wrap(ErrRelay, err, "source", source, "target", target)
	}
	return nil
}

// DeployImage makes t.Image available in the local registry, pulling it from the
// mirror or the hub when needed, and then starts the service.
func (p *Publisher) DeployImage(ctx context.Context, t *task.DeployTask) error {
	log := p.d.Events.Bind(t.EventID, "app-image")

	synced, err := p.syncImage(ctx, log, t)
	if err != nil || !synced {
		log.Failure(eventlog.MsgDeployFailed)
		p.finalStatus(ctx, log, t.EventID, controlplane.StatusFailure)
		p.d.Recorder.IncPublish(string(task.DestLocal), string(controlplane.VersionImage), metrics.ResultFailure)
		if err == nil {
			err = wrap(ErrImageMissing, nil, "image", t.Image)
		}
		return err
	}

	log.Success(eventlog.MsgDeployStarting)
	p.d.Recorder.IncPublish(string(task.DestLocal), string(controlplane.VersionImage), metrics.ResultSuccess)
	if err := p.d.Rollout.StartService(ctx, t.TenantName, t.ServiceAlias, t.EventID); err != nil {
		log.Warn(eventlog.MsgStartFailed, err.Error())
	}
	return nil
}

func (p *Publisher) syncImage(ctx context.Context, log *eventlog.Logger, t *task.DeployTask) (bool, error) {
	if ok, err := p.d.Local.Exists(ctx, t.Image); err == nil && ok {
		return true, nil
	}

	if p.d.Region.imageEnabled() {
		source := registry.Rename(t.Image, p.d.Region.Host, p.d.Region.Namespace)
		if ok, _ := p.d.Region.Registry.Exists(ctx, source); ok {
			log.Info(eventlog.MsgSyncing, t.Image, p.d.Region.Name)
			if err := p.d.Docker.Relay(ctx, source, t.Image, log.Output); err != nil {
				return false, wrap(ErrRelay, err, "source", source, "target", t.Image)
			}
			return true, nil
		}
	}

	if p.d.Market.imageEnabled() {
		ns := t.Namespace
		if ns == "" {
			ns = p.d.Market.Namespace
		}
		source := registry.Rename(t.Image, p.d.Market.Host, ns)
		ok, _ := p.d.Market.Registry.Exists(ctx, source)
		if !ok {
			log.Error(eventlog.MsgImageMissing, source, p.d.Market.Name)
			return false, nil
		}
		log.Info(eventlog.MsgSyncing, t.Image, p.d.Market.Name)
		if err := p.d.Docker.Relay(ctx, source, t.Image, log.Output); err != nil {
			return false, wrap(ErrRelay, err, "source", source, "target", t.Image)
		}
		return true, nil
	}
	return false, nil
}

// ImportImage pulls an external image, retags it into the local registry as
// "<name>:<tag>_<alias>", records the version and points the service at it.
func (p *Publisher) ImportImage(ctx context.Context, t *task.ImportTask) error {
	log := p.d.Events.Bind(t.EventID, "import-image")
	local := registry.Rename(t.Image, p.d.LocalHost, "") + "_" + t.ServiceAlias
	log.Info(eventlog.MsgImportStart, t.Image)

	err := p.d.Docker.Pull(ctx, t.Image, log.Output)
	if err == nil {
		err = p.d.Docker.Tag(ctx, t.Image, local)
	}
	if err == nil {
		log.Status(eventlog.StatusPushing, eventlog.MsgImagePushing, local)
		err = p.d.Docker.Push(ctx, local, log.Output)
	}
	if err != nil {
		err = wrap(ErrImport, err, "image", t.Image)
		log.Failure(eventlog.MsgImageBuildFailed, err.Error())
		p.finalStatus(ctx, log, t.EventID, controlplane.StatusFailure)
		return err
	}

	log.Success(eventlog.MsgImageReady, local)
	p.report(ctx, log, controlplane.VersionRecord{Type: controlplane.VersionImage, Path: local, EventID: t.EventID},
		controlplane.StatusSuccess)
	if err := p.d.Rollout.UpdateImage(ctx, t.TenantName, t.ServiceAlias, local); err != nil {
		log.Warn(eventlog.MsgMetadataFailed, err.Error())
	}
	if err := p.d.Rollout.StartService(ctx, t.TenantName, t.ServiceAlias, t.EventID); err != nil {
		log.Warn(eventlog.MsgStartFailed, err.Error())
	}
	return nil
}

func (p *Publisher) finalStatus(ctx context.Context, log *eventlog.Logger, eventID, status string) {
	if eventID == "" {
		return
	}
	if err := p.d.Reporter.ReportFinalStatus(ctx, eventID, status); err != nil {
		log.Warn(eventlog.MsgVersionFailed, err.Error())
	}
}
