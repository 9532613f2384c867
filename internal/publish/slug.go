package publish

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/slugstore"
	"git.home.luguber.info/inful/buildworker/internal/task"
)

// SlugKey is the tier-relative path of a published slug.
func SlugKey(serviceKey, appVersion string) string {
	return path.Join(serviceKey, appVersion+".tgz")
}

func (p *Publisher) localSlug(key string) string {
	return filepath.Join(p.d.PublishRoot, filepath.FromSlash(key))
}

// PublishSlug copies the built tarball into the publish root with an md5 sidecar and
// replicates both to the remote store of the target tier when its digest differs.
func (p *Publisher) PublishSlug(ctx context.Context, t *task.PublishTask) error {
	log := p.d.Events.Bind(t.EventID, "publish-slug")
	key := SlugKey(t.ServiceKey, t.AppVersion)
	o := outcome{kind: controlplane.VersionSlug, path: key}
	o.payload.Slug = key

	source := filepath.Join(p.d.Layout.For(t.TenantID, t.ServiceID).ArtifactDir, t.DeployVersion+".tgz")
	dest := p.localSlug(key)
	log.Info(eventlog.MsgPublishStart, key, string(t.Dest))

	if err := slugstore.CopyFile(source, dest); err != nil {
		return p.finish(ctx, log, t, o, wrap(ErrSlugCopy, err, "source", source, "dest", dest))
	}
	digest, err := slugstore.Digest(dest)
	if err != nil {
		return p.finish(ctx, log, t, o, wrap(ErrSlugCopy, err, "dest", dest))
	}
	sidecar, err := slugstore.WriteSidecar(dest, digest)
	if err != nil {
		return p.finish(ctx, log, t, o, wrap(ErrSlugCopy, err, "dest", dest))
	}

	store := p.tier(t.Dest).Slugs
	if store == nil {
		return p.finish(ctx, log, t, o, nil)
	}
	if err := p.upload(ctx, log, store, dest, sidecar, key, digest); err != nil {
		return p.finish(ctx, log, t, o, err)
	}
	return p.finish(ctx, log, t, o, nil)
}

// upload sends the slug and its sidecar unless the remote sidecar already carries digest.
func (p *Publisher) upload(ctx context.Context, log *eventlog.Logger, store slugstore.Store, local, sidecar, key, digest string) error {
	remote, err := slugstore.RemoteDigest(ctx, store, key)
	if err != nil {
		p.d.Logger.Warn("Remote digest lookup failed, uploading",
			logfields.Tier(store.Name()), logfields.Path(key), logfields.Error(err))
	}
	if remote == digest {
		p.d.Logger.Debug("Remote slug is current, skipping upload",
			logfields.Tier(store.Name()), logfields.Path(key), logfields.Digest(digest))
		return nil
	}

	log.Status(eventlog.StatusPushing, eventlog.MsgPublishStart, key, store.Name())
	if err := store.EnsureDir(ctx, path.Dir(key)); err != nil {
		return wrap(ErrSlugUpload, err, "tier", store.Name())
	}
	if err := store.Upload(ctx, local, key); err != nil {
		return wrap(ErrSlugUpload, err, "tier", store.Name(), "path", key)
	}
	if err := store.Upload(ctx, sidecar, key+slugstore.SidecarSuffix); err != nil {
		return wrap(ErrSlugUpload, err, "tier", store.Name(), "path", key+slugstore.SidecarSuffix)
	}
	return nil
}

// DeploySlug makes the slug of t available in the publish root, validating any cached
// copy against the tier sidecar, and then rolls the service out.
func (p *Publisher) DeploySlug(ctx context.Context, t *task.DeployTask) error {
	log := p.d.Events.Bind(t.EventID, "app-slug")
	key := SlugKey(t.ServiceKey, t.AppVersion)
	local := p.localSlug(key)

	p.dropStale(ctx, log, local, key)
	if err := p.fetchSlug(ctx, log, local, key); err != nil {
		log.Failure(eventlog.MsgDeployFailed)
		p.finalStatus(ctx, log, t.EventID, controlplane.StatusFailure)
		p.d.Recorder.IncPublish(string(task.DestLocal), string(controlplane.VersionSlug), metrics.ResultFailure)
		return err
	}

	log.Success(eventlog.MsgDeployStarting)
	p.d.Recorder.IncPublish(string(task.DestLocal), string(controlplane.VersionSlug), metrics.ResultSuccess)
	p.report(ctx, log, controlplane.VersionRecord{Type: controlplane.VersionSlug, Path: local, EventID: t.EventID},
		controlplane.StatusSuccess)
	if err := p.d.Rollout.Trigger(ctx, string(task.ActionUpgrade), t.TenantName, t.ServiceAlias,
		t.DeployVersion, t.EventID); err != nil {
		log.Warn(eventlog.MsgStartFailed, err.Error())
	}
	return nil
}

// slugTiers lists the configured remote stores, region first.
func (p *Publisher) slugTiers() []slugstore.Store {
	var out []slugstore.Store
	for _, s := range []slugstore.Store{p.d.Region.Slugs, p.d.Market.Slugs} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// dropStale removes a cached slug whose digest does not match the first tier sidecar found.
func (p *Publisher) dropStale(ctx context.Context, log *eventlog.Logger, local, key string) {
	if _, err := os.Stat(local); err != nil {
		return
	}
	var remote string
	for _, s := range p.slugTiers() {
		if d, err := slugstore.RemoteDigest(ctx, s, key); err == nil && d != "" {
			remote = d
			break
		}
	}
	if remote != "" {
		if digest, err := slugstore.Digest(local); err == nil && digest == remote {
			return
		}
	}
	log.Warn(eventlog.MsgChecksumMismatch, key)
	_ = os.Remove(local)
	_ = os.Remove(local + slugstore.SidecarSuffix)
}

// fetchSlug downloads key into local from the first tier that has it. A local copy wins.
func (p *Publisher) fetchSlug(ctx context.Context, log *eventlog.Logger, local, key string) error {
	if _, err := os.Stat(local); err == nil {
		return nil
	}
	var lastErr error
	for _, s := range p.slugTiers() {
		log.Info(eventlog.MsgSyncing, key, s.Name())
		err := s.Download(ctx, key, local)
		if err == nil {
			if digest, derr := slugstore.Digest(local); derr == nil {
				_, _ = slugstore.WriteSidecar(local, digest)
			}
			return nil
		}
		if !stderrors.Is(err, slugstore.ErrNotFound) {
			p.d.Logger.Warn("Slug download failed", logfields.Tier(s.Name()), logfields.Path(key), logfields.Error(err))
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fs.ErrNotExist
	}
	return wrap(ErrSlugMissing, lastErr, "path", key)
}
