// Package daemon consumes task envelopes from a NATS queue group and an HTTP
// intake endpoint, runs them one at a time, prunes expired artifacts on a
// schedule and reloads its tunables when the config file changes.
package daemon
