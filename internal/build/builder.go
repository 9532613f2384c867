package build

import (
	"context"

	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/task"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// Request is the input shared by both builders.
type Request struct {
	Task      *task.BuildTask
	Workspace workspace.Workspace
	Log       *eventlog.Logger
}

// Builder produces one artifact from a prepared workspace.
type Builder interface {
	Build(ctx context.Context, req Request) (*Artifact, error)
}
