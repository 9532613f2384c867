// Package pipeline drives one build task through lock, fetch, classify, build,
// report and rollout. The lock taken at the start is released on every exit path,
// and a failed run records exactly one terminal failure status before the stage
// error is returned to the caller.
package pipeline
