package controlplane

import (
	"context"
	"net/http"
)

// ServiceMetadata is what an image build learns from the Dockerfile.
type ServiceMetadata struct {
	Image           string            `json:"image"`
	InnerPort       string            `json:"inner_port"`
	PortList        map[string]string `json:"port_list"`
	VolumeList      []string          `json:"volume_list"`
	VolumeMountPath string            `json:"volume_mount_path"`
}

// UpdateServiceMetadata echoes image build metadata. Callers treat failure as non-fatal.
func (c *Client) UpdateServiceMetadata(ctx context.Context, tenantName, serviceAlias string, m ServiceMetadata) error {
	if m.PortList == nil {
		m.PortList = map[string]string{}
	}
	if m.VolumeList == nil {
		m.VolumeList = []string{}
	}
	return c.call(ctx, "update_service_metadata", http.MethodPut, servicePath(tenantName, serviceAlias, "build-info"), m)
}
