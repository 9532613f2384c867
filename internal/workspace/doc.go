// Package workspace lays out the per-service build directories and creates
// short-lived scratch directories.
//
// A Workspace is keyed by (tenant, service). Its source directory is wiped at the
// start of every build so nothing from an earlier build leaks into the next one.
// The cache, artifact and log directories persist between builds.
package workspace
