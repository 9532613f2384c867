package build

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/dockerfile"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/imagetool"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// ImageTool is the part of the docker CLI the image builder needs.
type ImageTool interface {
	Build(ctx context.Context, contextDir, image string, noCache bool, sink imagetool.LineSink) error
	Push(ctx context.Context, image string, sink imagetool.LineSink) error
}

// MetadataUpdater receives the Dockerfile metadata of a built image.
type MetadataUpdater interface {
	UpdateServiceMetadata(ctx context.Context, tenantName, serviceAlias string, m controlplane.ServiceMetadata) error
}

// ImageBuilder builds and pushes an image from a Dockerfile workspace.
type ImageBuilder struct {
	registry string
	docker   ImageTool
	meta     MetadataUpdater
	logger   *slog.Logger
}

func NewImageBuilder(registry string, docker ImageTool, meta MetadataUpdater, logger *slog.Logger) *ImageBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageBuilder{registry: registry, docker: docker, meta: meta, logger: logger}
}

func (b *ImageBuilder) Build(ctx context.Context, req Request) (*Artifact, error) {
	t := req.Task
	log := req.Log.WithStep("build-image")
	src := req.Workspace.SourceDir

	md, err := dockerfile.ParseFile(filepath.Join(src, "Dockerfile"), t.BuildEnvs)
	if err != nil {
		log.Failure(eventlog.MsgDockerfileInvalid, err.Error())
		return nil, wrap(ErrDockerfile, err, "service_id", t.ServiceID)
	}

	ref := imageRef(b.registry, t.ServiceID, t.RepoURL, t.DeployVersion)
	name := ref.String()
	log.Info(eventlog.MsgImageBuildStart, name)

	if err := b.docker.Build(ctx, src, name, t.NoCache(), log.Output); err != nil {
		log.Failure(eventlog.MsgImageBuildFailed, err.Error())
		return nil, wrap(ErrBuildCommand, err, "image", name)
	}

	log.Status(eventlog.StatusPushing, eventlog.MsgImagePushing, name)
	if err := b.docker.Push(ctx, name, log.Output); err != nil {
		log.Failure(eventlog.MsgImagePushFailed, err.Error())
		return nil, wrap(ErrPush, err, "image", name)
	}

	if b.meta != nil {
		update := controlplane.ServiceMetadata{
			Image:           name,
			InnerPort:       md.InnerPort(),
			PortList:        md.PortMap(),
			VolumeList:      md.Volumes,
			VolumeMountPath: md.VolumeMountPath(),
		}
		if err := b.meta.UpdateServiceMetadata(ctx, t.TenantName, t.ServiceAlias, update); err != nil {
			warn := wrap(ErrMetadataUpdate, err, "service_alias", t.ServiceAlias)
			b.logger.Warn("Service metadata update failed", logfields.ServiceID(t.ServiceID), logfields.Error(warn))
			log.Warn(eventlog.MsgMetadataFailed, err.Error())
		}
	}

	log.Info(eventlog.MsgImageReady, name)
	return &Artifact{Kind: KindImage, Image: &ref}, nil
}
