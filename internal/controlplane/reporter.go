package controlplane

import (
	"context"
	"net/http"
	"net/url"
)

// VersionType is the kind of artifact a version record points at.
type VersionType string

const (
	VersionImage VersionType = "image"
	VersionCode  VersionType = "code"
	VersionSlug  VersionType = "slug"
)

// Final statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// CommitMetadata is the source revision echoed with a version.
type CommitMetadata struct {
	CodeVersion      string `json:"code_version,omitempty"`
	CodeCommitMsg    string `json:"code_commit_msg,omitempty"`
	CodeCommitAuthor string `json:"code_commit_author,omitempty"`
}

// VersionRecord is posted once per successful build or deploy.
type VersionRecord struct {
	Type    VersionType `json:"type"`
	Path    string      `json:"path"`
	EventID string      `json:"event_id"`
	CommitMetadata
}

// Reporter records versions and terminal statuses.
type Reporter struct {
	c *Client
}

func NewReporter(c *Client) *Reporter { return &Reporter{c: c} }

// ReportVersion posts a version record.
func (r *Reporter) ReportVersion(ctx context.Context, v VersionRecord) error {
	return r.c.call(ctx, "report_version", http.MethodPost, "/v2/builder/version", v)
}

// ReportCommit attaches commit metadata to the version event.
func (r *Reporter) ReportCommit(ctx context.Context, eventID string, meta CommitMetadata) error {
	return r.reportEvent(ctx, eventID, meta)
}

// ReportFinalStatus writes the terminal status for eventID.
func (r *Reporter) ReportFinalStatus(ctx context.Context, eventID, status string) error {
	return r.reportEvent(ctx, eventID, map[string]string{"final_status": status})
}

func (r *Reporter) reportEvent(ctx context.Context, eventID string, body any) error {
	return r.c.call(ctx, "report_version_event", http.MethodPut, "/v2/builder/version/event/"+url.PathEscape(eventID), body)
}
