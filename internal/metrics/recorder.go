package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultWarning ResultLabel = "warning"
	ResultFailure ResultLabel = "failure"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines observability hooks for the build and publish pipelines.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(kind string, result ResultLabel) // kind: image|slug|none
	IncLockSkip(stage string)
	IncCloneAttempt(success bool)
	IncPublish(tier, kind string, result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string, ResultLabel)        {}
func (NoopRecorder) IncLockSkip(string)                         {}
func (NoopRecorder) IncCloneAttempt(bool)                       {}
func (NoopRecorder) IncPublish(string, string, ResultLabel)     {}
