// Package publish moves finished artifacts between the local registry, the
// region tier and the marketplace tier, and reports every outcome to the
// control plane.
package publish

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/task"
)

// Publisher implements the publish, deploy and import flows.
type Publisher struct {
	d Deps
}

// New returns a Publisher. Nil Events, Recorder and Logger fall back to no-ops.
func New(d Deps) *Publisher {
	if d.Events == nil {
		d.Events = eventlog.Discard()
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Publisher{d: d}
}

func (p *Publisher) tier(dest task.Dest) Tier {
	if dest == task.DestMarket {
		return p.d.Market
	}
	return p.d.Region
}

// outcome is what a publish branch hands to finish.
type outcome struct {
	kind    controlplane.VersionType
	path    string
	payload controlplane.PublishPayload
}

// finish is the single exit of every publish call: one callback, one event-log
// status line, one version record and one final status.
func (p *Publisher) finish(ctx context.Context, log *eventlog.Logger, t *task.PublishTask, o outcome, err error) error {
	tier := string(t.Dest)
	o.payload.ServiceKey = t.ServiceKey
	o.payload.AppVersion = t.AppVersion
	o.payload.ShareID = t.ShareID
	o.payload.DestYB = t.Dest == task.DestLocal
	o.payload.DestYS = t.Dest == task.DestMarket

	status := controlplane.StatusSuccess
	result := metrics.ResultSuccess
	var cbErr error
	if err != nil {
		status = controlplane.StatusFailure
		result = metrics.ResultFailure
		log.Failure(eventlog.MsgPublishFailed, tier, err.Error())
		cbErr = p.d.Notifier.PublishFailure(ctx, o.payload)
	} else {
		log.Success(eventlog.MsgPublishSucceeded, tier)
		cbErr = p.d.Notifier.PublishSuccess(ctx, o.payload)
	}
	if cbErr != nil {
		p.d.Logger.Warn("Publish callback failed",
			logfields.Tier(tier), slog.String("service_key", t.ServiceKey), logfields.Error(cbErr))
	}

	p.report(ctx, log, controlplane.VersionRecord{Type: o.kind, Path: o.path, EventID: t.EventID}, status)
	p.d.Recorder.IncPublish(tier, string(o.kind), result)
	return err
}

// report writes a version record followed by the final status. Both are best-effort.
func (p *Publisher) report(ctx context.Context, log *eventlog.Logger, v controlplane.VersionRecord, status string) {
	if v.EventID == "" {
		return
	}
	if err := p.d.Reporter.ReportVersion(ctx, v); err != nil {
		log.Warn(eventlog.MsgVersionFailed, err.Error())
	}
	if err := p.d.Reporter.ReportFinalStatus(ctx, v.EventID, status); err != nil {
		log.Warn(eventlog.MsgVersionFailed, err.Error())
	}
}
