package github

import (
	"fmt"
	"net/url"
	"strings"

	"chat-tools-backend/types"
)

// APIBaseURL returns the REST root for a GitHub host. Enterprise servers serve the API
// under /api/v3.
func APIBaseURL(host string) string {
	if host == "" || host == "github.com" {
		return DefaultAPIURL
	}
	return fmt.Sprintf("https://%s/api/v3", host)
}

// ParseRepoURL extracts coordinates from https, ssh (git@host:owner/repo) and
// owner/repo forms.
func ParseRepoURL(raw string) (types.RepoRef, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), ".git"))
	if raw == "" {
		return types.RepoRef{}, fmt.Errorf("empty GitHub repository URL")
	}

	host := "github.com"
	path := raw
	switch {
	case strings.HasPrefix(raw, "git@"):
		rest := strings.TrimPrefix(raw, "git@")
		idx := strings.Index(rest, ":")
		if idx < 0 {
			return types.RepoRef{}, fmt.Errorf("invalid GitHub SSH URL: %s", raw)
		}
		host, path = rest[:idx], rest[idx+1:]
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return types.RepoRef{}, fmt.Errorf("invalid GitHub URL: %w", err)
		}
		host, path = u.Host, u.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return types.RepoRef{}, fmt.Errorf("invalid GitHub URL path: expected owner/repo in %s", raw)
	}
	ref := types.RepoRef{Provider: types.ProviderGitHub, Owner: parts[0], Name: parts[1]}
	if host != "github.com" {
		ref.Host = host
	}
	return ref, nil
}

// CloneURL returns the https clone URL for ref.
func CloneURL(ref types.RepoRef) string {
	host := ref.Host
	if host == "" {
		host = "github.com"
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, ref.Owner, ref.Name)
}
