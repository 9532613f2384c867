// Package task decodes and validates the JSON task documents the worker consumes.
package task

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Action is the rollout verb a build task requests on success.
type Action string

const (
	ActionDeploy  Action = "deploy"
	ActionUpgrade Action = "upgrade"
)

// Dest is a publish tier.
type Dest string

const (
	// DestLocal is the local platform tier ("yb").
	DestLocal Dest = "yb"
	// DestMarket is the public marketplace tier ("ys").
	DestMarket Dest = "ys"
)

const (
	defaultBranch        = "master"
	defaultExpireSeconds = 60
)

// NoCacheEnv is the reserved build-env key that disables build caches.
const NoCacheEnv = "NO_CACHE"

// BuildTask describes one source build.
type BuildTask struct {
	TenantID      string            `json:"tenant_id"`
	ServiceID     string            `json:"service_id"`
	ServiceAlias  string            `json:"service_alias"`
	TenantName    string            `json:"tenant_name"`
	RepoURL       string            `json:"repo_url"`
	Branch        string            `json:"branch,omitempty"`
	DeployVersion string            `json:"deploy_version"`
	Action        Action            `json:"action"`
	Operator      string            `json:"operator,omitempty"`
	BuildEnvs     map[string]string `json:"build_envs,omitempty"`
	EventID       string            `json:"event_id"`
	ExpireSeconds int               `json:"expire_seconds"`
}

// Expired reports whether a task queued at queuedAt has outlived ExpireSeconds at now.
// A zero queuedAt or a non-positive ExpireSeconds never expires.
func (t *BuildTask) Expired(queuedAt, now time.Time) bool {
	if queuedAt.IsZero() || t.ExpireSeconds <= 0 {
		return false
	}
	return now.Sub(queuedAt) > time.Duration(t.ExpireSeconds)*time.Second
}

// buildTaskWire accepts both the current and the legacy key names.
type buildTaskWire struct {
	BuildTask
	Envs          map[string]any `json:"envs"`
	BuildEnvsRaw  map[string]any `json:"build_envs"`
	Expire        *int           `json:"expire"`
	ExpireSeconds *int           `json:"expire_seconds"`
}

// DecodeBuildTask reads one JSON object from r and validates it.
//
// repo_url may carry the branch after a space ("<url> <branch>"); an explicit branch field wins.
func DecodeBuildTask(r io.Reader) (*BuildTask, error) {
	var w buildTaskWire
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, errors.ValidationError("invalid build task JSON").WithCause(err).Build()
	}
	t := w.BuildTask

	t.BuildEnvs = stringifyEnvs(w.Envs)
	for k, v := range stringifyEnvs(w.BuildEnvsRaw) {
		t.BuildEnvs[k] = v
	}

	switch {
	case w.ExpireSeconds != nil:
		t.ExpireSeconds = *w.ExpireSeconds
	case w.Expire != nil:
		t.ExpireSeconds = *w.Expire
	default:
		t.ExpireSeconds = defaultExpireSeconds
	}

	if fields := strings.Fields(t.RepoURL); len(fields) > 1 {
		t.RepoURL = fields[0]
		if t.Branch == "" {
			t.Branch = fields[1]
		}
	}
	if t.Branch == "" {
		t.Branch = defaultBranch
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate reports the first missing or invalid field.
func (t *BuildTask) Validate() error {
	if err := required(map[string]string{
		"tenant_id":      t.TenantID,
		"service_id":     t.ServiceID,
		"service_alias":  t.ServiceAlias,
		"tenant_name":    t.TenantName,
		"repo_url":       t.RepoURL,
		"deploy_version": t.DeployVersion,
		"event_id":       t.EventID,
	}); err != nil {
		return err
	}
	switch t.Action {
	case ActionDeploy, ActionUpgrade:
	default:
		return errors.ValidationError(fmt.Sprintf("invalid action %q (allowed: deploy|upgrade)", t.Action)).
			WithContext("field", "action").
			Build()
	}
	return nil
}

// NoCache reports whether the reserved NO_CACHE key is present.
func (t *BuildTask) NoCache() bool {
	_, ok := t.BuildEnvs[NoCacheEnv]
	return ok
}

// CompilerEnvs returns the build envs without reserved keys.
func (t *BuildTask) CompilerEnvs() map[string]string {
	out := make(map[string]string, len(t.BuildEnvs))
	for k, v := range t.BuildEnvs {
		if k == NoCacheEnv {
			continue
		}
		out[k] = v
	}
	return out
}

// PublishTask asks for an existing artifact to be published to a tier.
type PublishTask struct {
	ServiceKey    string `json:"service_key"`
	AppVersion    string `json:"app_version"`
	Image         string `json:"image,omitempty"`
	ServiceID     string `json:"service_id"`
	TenantID      string `json:"tenant_id"`
	DeployVersion string `json:"deploy_version"`
	Dest          Dest   `json:"dest"`
	ShareID       string `json:"share_id,omitempty"`
	EventID       string `json:"event_id"`
}

// DecodePublishTask reads and validates a PublishTask. image tasks need Image; slug tasks need
// the service and deploy version that locate the built tarball.
func DecodePublishTask(r io.Reader, image bool) (*PublishTask, error) {
	var t PublishTask
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, errors.ValidationError("invalid publish task JSON").WithCause(err).Build()
	}
	fields := map[string]string{
		"service_key": t.ServiceKey,
		"app_version": t.AppVersion,
	}
	if image {
		fields["image"] = t.Image
	} else {
		fields["tenant_id"] = t.TenantID
		fields["service_id"] = t.ServiceID
		fields["deploy_version"] = t.DeployVersion
	}
	if err := required(fields); err != nil {
		return nil, err
	}
	if t.Dest != DestLocal && t.Dest != DestMarket {
		return nil, errors.ValidationError(fmt.Sprintf("invalid dest %q (allowed: yb|ys)", t.Dest)).
			WithContext("field", "dest").
			Build()
	}
	return &t, nil
}

// DeployTask asks for an artifact to be synced from the tiers and the service started.
type DeployTask struct {
	ServiceKey    string `json:"service_key"`
	AppVersion    string `json:"app_version"`
	Image         string `json:"image,omitempty"`
	Namespace     string `json:"namespace,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	TenantName    string `json:"tenant_name"`
	ServiceAlias  string `json:"service_alias"`
	DeployVersion string `json:"deploy_version,omitempty"`
	EventID       string `json:"event_id"`
}

type deployTaskWire struct {
	DeployTask
	AppKey string `json:"app_key"`
}

// DecodeDeployTask reads and validates a DeployTask. app_key is accepted for service_key.
func DecodeDeployTask(r io.Reader, image bool) (*DeployTask, error) {
	var w deployTaskWire
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, errors.ValidationError("invalid deploy task JSON").WithCause(err).Build()
	}
	t := w.DeployTask
	if t.ServiceKey == "" {
		t.ServiceKey = w.AppKey
	}
	fields := map[string]string{
		"tenant_name":   t.TenantName,
		"service_alias": t.ServiceAlias,
		"event_id":      t.EventID,
	}
	if image {
		fields["image"] = t.Image
	} else {
		fields["service_key"] = t.ServiceKey
		fields["app_version"] = t.AppVersion
		fields["deploy_version"] = t.DeployVersion
	}
	if err := required(fields); err != nil {
		return nil, err
	}
	return &t, nil
}

// ImportTask asks for an external image to be imported into the local registry.
type ImportTask struct {
	Image         string `json:"image"`
	TenantName    string `json:"tenant_name"`
	ServiceAlias  string `json:"service_alias"`
	ServiceID     string `json:"service_id,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
	DeployVersion string `json:"deploy_version,omitempty"`
	EventID       string `json:"event_id"`
}

func DecodeImportTask(r io.Reader) (*ImportTask, error) {
	var t ImportTask
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, errors.ValidationError("invalid import task JSON").WithCause(err).Build()
	}
	if err := required(map[string]string{
		"image":         t.Image,
		"tenant_name":   t.TenantName,
		"service_alias": t.ServiceAlias,
		"event_id":      t.EventID,
	}); err != nil {
		return nil, err
	}
	return &t, nil
}

func required(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			return errors.ValidationError("missing required field: " + name).WithContext("field", name).Build()
		}
	}
	return nil
}

func stringifyEnvs(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
