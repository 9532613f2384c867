// Package build turns a fetched workspace into a deployable artifact.
//
// Classify picks the builder: a Dockerfile at the source root selects ImageBuilder,
// anything else goes to SlugBuilder. Both builders stream subprocess output into the
// event log and return exactly one Artifact on success.
package build
