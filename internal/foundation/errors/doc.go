// Package errors provides the classified error primitives used across the build worker.
//
// A ClassifiedError carries a category (which collaborator or stage failed), a severity
// (fatal to the pipeline, stage error, or best-effort warning) and a retry hint. The CLI
// adapter turns categories into process exit codes and the HTTP adapter renders them for
// the daemon's task intake endpoint.
//
//	err := errors.GitError("clone failed").
//		WithCause(cause).
//		WithContext("url", repoURL).
//		Build()
package errors
