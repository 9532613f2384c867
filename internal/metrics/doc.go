// Package metrics records pipeline metrics.
//
// Components take a Recorder and default to NoopRecorder, so metrics are optional. The daemon
// swaps in a PrometheusRecorder and serves it with HTTPHandler on /metrics.
package metrics
