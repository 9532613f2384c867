package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/pipeline"
	"git.home.luguber.info/inful/buildworker/internal/task"
)

// TaskType selects the handler of an Envelope.
type TaskType string

const (
	TypeBuild       TaskType = "build_from_source_code"
	TypeDeploySlug  TaskType = "build_from_market_slug"
	TypeDeployImage TaskType = "build_from_market_image"
	TypeImportImage TaskType = "build_from_image"
	TypeShareImage  TaskType = "share_image"
	TypeShareSlug   TaskType = "share_slug"
)

// Envelope is the queue message format: a typed task body.
type Envelope struct {
	Type TaskType        `json:"type"`
	Body json.RawMessage `json:"body"`
	Time time.Time       `json:"time,omitempty"`
	User string          `json:"user,omitempty"`
}

// DecodeEnvelope parses data and checks that the type is known and the body present.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.ValidationError("malformed task envelope").WithCause(err).Build()
	}
	switch env.Type {
	case TypeBuild, TypeDeploySlug, TypeDeployImage, TypeImportImage, TypeShareImage, TypeShareSlug:
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown task type %q", env.Type)).Build()
	}
	if len(env.Body) == 0 {
		return nil, errors.ValidationError("task envelope has no body").
			WithContext("type", string(env.Type)).
			Build()
	}
	return &env, nil
}

// Runner runs build tasks. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, t *task.BuildTask) (*pipeline.Result, error)
}

// Publisher runs the publish, deploy and import flows. *publish.Publisher implements it.
type Publisher interface {
	PublishImage(ctx context.Context, t *task.PublishTask) error
	PublishSlug(ctx context.Context, t *task.PublishTask) error
	DeployImage(ctx context.Context, t *task.DeployTask) error
	DeploySlug(ctx context.Context, t *task.DeployTask) error
	ImportImage(ctx context.Context, t *task.ImportTask) error
}

// ErrTaskExpired is returned for a build task that waited longer than its expire_seconds.
var ErrTaskExpired = errors.DaemonError("build task expired before it started").
	WithSeverity(errors.SeverityWarning).
	Build()

// Dispatcher routes envelopes to the pipeline or the publisher.
type Dispatcher struct {
	runner    Runner
	publisher Publisher
	now       func() time.Time
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(runner Runner, publisher Publisher) *Dispatcher {
	return &Dispatcher{runner: runner, publisher: publisher, now: time.Now}
}

// Dispatch decodes the body of env and runs it to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) error {
	body := bytes.NewReader(env.Body)
	switch env.Type {
	case TypeBuild:
		t, err := task.DecodeBuildTask(body)
		if err != nil {
			return err
		}
		// env.Time is stamped by the producer; unstamped envelopes never expire
		if t.Expired(env.Time, d.now()) {
			return errors.WrapError(ErrTaskExpired, errors.CategoryDaemon, ErrTaskExpired.Message()).
				WithSeverity(errors.SeverityWarning).
				WithContext("event_id", t.EventID).
				WithContext("queued_at", env.Time.Format(time.RFC3339)).
				WithContext("expire_seconds", t.ExpireSeconds).
				Build()
		}
		_, err = d.runner.Run(ctx, t)
		return err
	case TypeShareImage, TypeShareSlug:
		image := env.Type == TypeShareImage
		t, err := task.DecodePublishTask(body, image)
		if err != nil {
			return err
		}
		if image {
			return d.publisher.PublishImage(ctx, t)
		}
		return d.publisher.PublishSlug(ctx, t)
	case TypeDeployImage, TypeDeploySlug:
		image := env.Type == TypeDeployImage
		t, err := task.DecodeDeployTask(body, image)
		if err != nil {
			return err
		}
		if image {
			return d.publisher.DeployImage(ctx, t)
		}
		return d.publisher.DeploySlug(ctx, t)
	case TypeImportImage:
		t, err := task.DecodeImportTask(body)
		if err != nil {
			return err
		}
		return d.publisher.ImportImage(ctx, t)
	default:
		return errors.ValidationError(fmt.Sprintf("unknown task type %q", env.Type)).Build()
	}
}
