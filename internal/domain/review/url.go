package review

import (
	"net/url"
	"strings"
)

// ParseRepoURL extracts the owner and repository name from a hosting-service
// repository URL such as "https://github.com/owner/repo". It returns a
// ValidationError when the reference is malformed.
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	u, parseErr := url.Parse(repoURL)
	if parseErr != nil || u.Host == "" {
		return "", "", NewValidationError("repo_url", "not a valid repository URL")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", NewValidationError("repo_url", "expected /{owner}/{repo} path")
	}

	return parts[0], parts[1], nil
}
