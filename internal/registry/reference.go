package registry

import (
	"strings"
)

// Reference is a parsed image name: host/[namespace/]name:tag.
type Reference struct {
	Host      string
	Namespace string
	Name      string
	Tag       string
}

// ParseReference splits image into its parts. A missing tag is "latest". The first
// path segment is the host only when more segments follow and it contains a '.' or
// a ':' or is "localhost"; everything between host and name is the namespace.
func ParseReference(image string) Reference {
	var ref Reference
	rest := image
	if first, after, ok := strings.Cut(image, "/"); ok && isHost(first) {
		ref.Host = first
		rest = after
	}
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		ref.Namespace, rest = rest[:i], rest[i+1:]
	}
	if name, tag, ok := strings.Cut(rest, ":"); ok {
		ref.Name, ref.Tag = name, tag
	} else {
		ref.Name, ref.Tag = rest, "latest"
	}
	return ref
}

func isHost(segment string) bool {
	return segment == "localhost" || strings.ContainsAny(segment, ".:")
}

// Repository returns "[namespace/]name".
func (r Reference) Repository() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

// String reassembles the reference.
func (r Reference) String() string {
	var b strings.Builder
	if r.Host != "" {
		b.WriteString(r.Host)
		b.WriteByte('/')
	}
	b.WriteString(r.Repository())
	b.WriteByte(':')
	b.WriteString(r.Tag)
	return b.String()
}

// Rename rewrites the registry host and namespace of image, keeping name and tag.
// An empty namespace drops any existing namespace.
func Rename(image, host, namespace string) string {
	ref := ParseReference(image)
	ref.Host = host
	ref.Namespace = namespace
	return ref.String()
}
