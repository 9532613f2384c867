package build

import (
	"regexp"
	"strings"
)

var repoPattern = regexp.MustCompile(`.*(?:\:|\/)([\w\-\.]+)/([\w\-\.]+)\.git`)

// ImageName returns <registry>/<sid[:12]>_<account>_<project>:<version>, lower-cased.
// account and project come from the repo URL; when it does not look like a git URL
// they fall back to "goodrain" and the short service id.
func ImageName(registry, serviceID, repoURL, deployVersion string) string {
	ref := imageRef(registry, serviceID, repoURL, deployVersion)
	return ref.String()
}

func imageRef(registry, serviceID, repoURL, deployVersion string) ImageRef {
	short := prefix(serviceID, 12)
	account, project := "goodrain", short
	if m := repoPattern.FindStringSubmatch(repoURL); m != nil {
		account, project = m[1], m[2]
	}
	return ImageRef{
		Registry: strings.ToLower(registry),
		Name:     strings.ToLower(short + "_" + account + "_" + project),
		Tag:      strings.ToLower(deployVersion),
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
