package build

import (
	"os"
	"path/filepath"
)

// Kind is the artifact a workspace produces.
type Kind string

const (
	KindImage Kind = "image"
	KindSlug  Kind = "slug"
)

// Classify returns KindImage when sourceDir has a regular Dockerfile at its root.
func Classify(sourceDir string) Kind {
	info, err := os.Stat(filepath.Join(sourceDir, "Dockerfile"))
	if err == nil && info.Mode().IsRegular() {
		return KindImage
	}
	return KindSlug
}

// ImageRef is a pushed image.
type ImageRef struct {
	Registry string
	Name     string
	Tag      string
}

func (r ImageRef) String() string {
	return r.Registry + "/" + r.Name + ":" + r.Tag
}

// SlugRef is a compiled slug tarball and its md5.
type SlugRef struct {
	Path   string
	Digest string
}

// Artifact is the single output of a successful build. Exactly one of Image or Slug is set.
type Artifact struct {
	Kind  Kind
	Image *ImageRef
	Slug  *SlugRef
}

// Location is the image reference or the slug path.
func (a *Artifact) Location() string {
	switch a.Kind {
	case KindImage:
		return a.Image.String()
	case KindSlug:
		return a.Slug.Path
	default:
		return ""
	}
}
