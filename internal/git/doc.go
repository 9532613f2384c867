// Package git fetches service source code with go-git.
//
// Clone gives each repository at most two attempts under a wall-clock timeout,
// resetting the destination between attempts. Failures are mapped onto typed
// errors (AuthError, NotFoundError, ...) so callers can classify them without
// string parsing. CommitInfo is best-effort and never fails.
package git
