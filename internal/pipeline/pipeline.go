package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/build"
	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/eventstore"
	ferrors "git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/git"
	"git.home.luguber.info/inful/buildworker/internal/lock"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/observability"
	"git.home.luguber.info/inful/buildworker/internal/task"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// Stage names used for lock keys and metrics.
const (
	StageBuild   = "build"
	StageClone   = "clone"
	StageRollout = "rollout"
)

// Fetcher clones sources and reads commit metadata. *git.Fetcher implements it.
type Fetcher interface {
	Clone(ctx context.Context, req git.CloneRequest) error
	CommitInfo(dir string) git.CommitInfo
}

// Reporter sends version records to the control plane.
type Reporter interface {
	ReportVersion(ctx context.Context, v controlplane.VersionRecord) error
	ReportCommit(ctx context.Context, eventID string, meta controlplane.CommitMetadata) error
	ReportFinalStatus(ctx context.Context, eventID, status string) error
}

// Rollout upgrades the service after a successful build.
type Rollout interface {
	Trigger(ctx context.Context, action, tenantName, serviceAlias, deployVersion, eventID string) error
}

// VersionJournal keeps a local record of built artifacts for the janitor.
type VersionJournal interface {
	RecordVersion(ctx context.Context, v eventstore.Version) (int64, error)
}

// Deps wires a Pipeline. Versions is optional.
type Deps struct {
	Lock         *lock.TaskLock
	Layout       *workspace.Layout
	Fetcher      Fetcher
	ImageBuilder build.Builder
	SlugBuilder  build.Builder
	Reporter     Reporter
	Rollout      Rollout
	Versions     VersionJournal
	Events       *eventlog.Sink
	Recorder     metrics.Recorder
	WorkerID     string
}

// Pipeline runs build tasks.
type Pipeline struct {
	d Deps
}

// Result describes a finished run.
type Result struct {
	// Skipped is true when another worker held the lock.
	Skipped  bool
	Artifact *build.Artifact
	Commit   git.CommitInfo
}

// New returns a Pipeline. Nil Events and Recorder fall back to no-ops.
func New(d Deps) *Pipeline {
	if d.Events == nil {
		d.Events = eventlog.Discard()
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	return &Pipeline{d: d}
}

type lockOwner struct {
	*task.BuildTask
	WorkerID string `json:"worker_id"`
}

// Run executes t. A held lock yields a skipped Result and a nil error.
func (p *Pipeline) Run(ctx context.Context, t *task.BuildTask) (*Result, error) {
	ctx = observability.WithEventID(ctx, t.EventID)
	ctx = observability.WithService(ctx, t.TenantID, t.ServiceID)
	ctx = observability.WithStage(ctx, StageBuild)
	log := p.d.Events.Bind(t.EventID, StageBuild)

	id := lock.ID(StageBuild, t.ServiceID)
	if p.d.Lock.Exists(ctx, id) {
		return p.skip(ctx, log, t, id), nil
	}
	owner, err := json.Marshal(lockOwner{BuildTask: t, WorkerID: p.d.WorkerID})
	if err != nil {
		return nil, ferrors.InternalError("failed to encode lock owner").WithCause(err).Build()
	}
	switch err := p.d.Lock.Acquire(ctx, id, owner); {
	case err == nil:
		defer p.d.Lock.Release(context.WithoutCancel(ctx), id)
	case errors.Is(err, lock.ErrHeld):
		return p.skip(ctx, log, t, id), nil
	default:
		// the entry is not ours, so it is never released
		observability.WarnContext(ctx, "Lock store unavailable, building without lock",
			logfields.LockID(id), logfields.Error(err))
	}

	log.Info(eventlog.MsgTaskReceived, t.ServiceAlias)
	observability.InfoContext(ctx, "Build task received",
		logfields.Action(string(t.Action)), logfields.Operator(t.Operator), logfields.Worker(p.d.WorkerID))
	start := time.Now()
	res, err := p.run(ctx, log, t)
	p.d.Recorder.ObserveStageDuration(StageBuild, time.Since(start))

	kind := "none"
	if res.Artifact != nil {
		kind = string(res.Artifact.Kind)
	}
	if err != nil {
		log.Failure(eventlog.MsgBuildFailed)
		p.finalStatus(ctx, log, t.EventID, controlplane.StatusFailure)
		p.d.Recorder.IncStageResult(StageBuild, metrics.ResultFailure)
		p.d.Recorder.IncBuildOutcome(kind, metrics.ResultFailure)
		observability.ErrorContext(ctx, "Build failed", logfields.Error(err))
		return res, err
	}

	p.d.Recorder.IncStageResult(StageBuild, metrics.ResultSuccess)
	p.d.Recorder.IncBuildOutcome(kind, metrics.ResultSuccess)
	observability.InfoContext(ctx, "Build finished",
		slog.String("artifact", res.Artifact.Location()),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))

	p.rollout(ctx, log, t)
	return res, nil
}

func (p *Pipeline) skip(ctx context.Context, log *eventlog.Logger, t *task.BuildTask, id string) *Result {
	log.Info(eventlog.MsgAlreadyRunning, t.ServiceAlias)
	p.d.Recorder.IncLockSkip(StageBuild)
	observability.InfoContext(ctx, "Lock held by another worker, skipping", logfields.LockID(id))
	return &Result{Skipped: true}
}

// run covers fetch through version report. Any returned error is fatal to the build.
func (p *Pipeline) run(ctx context.Context, log *eventlog.Logger, t *task.BuildTask) (*Result, error) {
	res := &Result{}
	ws := p.d.Layout.For(t.TenantID, t.ServiceID)
	if err := ws.Prepare(); err != nil {
		return res, ferrors.FileSystemError("failed to prepare workspace").
			WithCause(err).
			WithContext("path", ws.SourceDir).
			Build()
	}

	if err := p.fetch(ctx, log, t, ws); err != nil {
		return res, err
	}

	res.Commit = p.d.Fetcher.CommitInfo(ws.SourceDir)
	log.Info(eventlog.MsgSourceFetched, res.Commit.ShortHash(), res.Commit.Author, res.Commit.Subject)
	meta := controlplane.CommitMetadata{
		CodeVersion:      res.Commit.ShortHash(),
		CodeCommitMsg:    res.Commit.Subject,
		CodeCommitAuthor: res.Commit.Author,
	}
	if err := p.d.Reporter.ReportCommit(ctx, t.EventID, meta); err != nil {
		log.Warn(eventlog.MsgVersionFailed, err.Error())
	}

	kind := build.Classify(ws.SourceDir)
	builder := p.d.SlugBuilder
	if kind == build.KindImage {
		builder = p.d.ImageBuilder
	}
	artifact, err := builder.Build(ctx, build.Request{Task: t, Workspace: ws, Log: log.WithStep("build-" + string(kind))})
	if err != nil {
		res.Artifact = &build.Artifact{Kind: kind}
		return res, err
	}
	res.Artifact = artifact

	record := controlplane.VersionRecord{
		Type:           controlplane.VersionCode,
		Path:           artifact.Location(),
		EventID:        t.EventID,
		CommitMetadata: meta,
	}
	if artifact.Kind == build.KindImage {
		record.Type = controlplane.VersionImage
	}
	if err := p.d.Reporter.ReportVersion(ctx, record); err != nil {
		log.Warn(eventlog.MsgVersionFailed, err.Error())
	}
	p.journal(ctx, t, record)
	p.finalStatus(ctx, log, t.EventID, controlplane.StatusSuccess)
	log.Success(eventlog.MsgBuildSucceeded)
	return res, nil
}

func (p *Pipeline) journal(ctx context.Context, t *task.BuildTask, record controlplane.VersionRecord) {
	if p.d.Versions == nil {
		return
	}
	_, err := p.d.Versions.RecordVersion(ctx, eventstore.Version{
		TenantID:  t.TenantID,
		ServiceID: t.ServiceID,
		EventID:   t.EventID,
		Kind:      string(record.Type),
		Path:      record.Path,
		Status:    eventstore.VersionSuccess,
		CreatedAt: time.Now(),
	})
	if err != nil {
		observability.WarnContext(ctx, "Failed to journal version", logfields.Path(record.Path), logfields.Error(err))
	}
}

func (p *Pipeline) fetch(ctx context.Context, log *eventlog.Logger, t *task.BuildTask, ws workspace.Workspace) error {
	ctx = observability.WithStage(ctx, StageClone)
	start := time.Now()
	attempt := 1
	log.Info(eventlog.MsgCloneAttempt, t.RepoURL, attempt)

	err := p.d.Fetcher.Clone(ctx, git.CloneRequest{
		URL:    t.RepoURL,
		Branch: t.Branch,
		Dest:   ws.SourceDir,
		Reset: func() error {
			attempt++
			log.Info(eventlog.MsgCloneAttempt, t.RepoURL, attempt)
			return ws.ResetSource()
		},
		Observe: func(_ int, err error) {
			p.d.Recorder.IncCloneAttempt(err == nil)
			if err != nil {
				log.Warn(eventlog.MsgCloneFailed, err.Error())
			}
		},
	})
	p.d.Recorder.ObserveStageDuration(StageClone, time.Since(start))
	if err != nil {
		p.d.Recorder.IncStageResult(StageClone, metrics.ResultFailure)
		return err
	}
	p.d.Recorder.IncStageResult(StageClone, metrics.ResultSuccess)
	return nil
}

// rollout upgrades the service. Failure leaves the build successful.
func (p *Pipeline) rollout(ctx context.Context, log *eventlog.Logger, t *task.BuildTask) {
	ctx = observability.WithStage(ctx, StageRollout)
	log.Info(eventlog.MsgRollout, t.DeployVersion)
	start := time.Now()
	err := p.d.Rollout.Trigger(ctx, string(t.Action), t.TenantName, t.ServiceAlias, t.DeployVersion, t.EventID)
	p.d.Recorder.ObserveStageDuration(StageRollout, time.Since(start))
	if err != nil {
		log.Warn(eventlog.MsgRolloutFailed, err.Error())
		p.d.Recorder.IncStageResult(StageRollout, metrics.ResultWarning)
		observability.WarnContext(ctx, "Rollout failed", logfields.Error(err))
		return
	}
	p.d.Recorder.IncStageResult(StageRollout, metrics.ResultSuccess)
}

func (p *Pipeline) finalStatus(ctx context.Context, log *eventlog.Logger, eventID, status string) {
	if err := p.d.Reporter.ReportFinalStatus(ctx, eventID, status); err != nil {
		log.Warn(eventlog.MsgVersionFailed, err.Error())
	}
}
