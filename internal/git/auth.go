package git

import (
	"net/url"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// authFor returns basic auth from the URL userinfo, falling back to the configured
// credentials. It returns nil for anonymous access and non-HTTP remotes.
func authFor(repoURL, username, token string) transport.AuthMethod {
	u, err := url.Parse(repoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		return &http.BasicAuth{Username: u.User.Username(), Password: pass}
	}
	if token == "" {
		return nil
	}
	if username == "" {
		username = "oauth2"
	}
	return &http.BasicAuth{Username: username, Password: token}
}
