package gitlab

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"chat-tools-backend/types"
)

var sshPattern = regexp.MustCompile(`^git@([^:]+):(.+)$`)

// ParseGitLabURL parses a GitLab repository URL. Nested groups are kept in Owner, so
// https://gitlab.com/group/sub/repo yields Owner "group/sub" and Name "repo".
func ParseGitLabURL(repoURL string) (types.RepoRef, error) {
	if repoURL == "" {
		return types.RepoRef{}, fmt.Errorf("repository URL cannot be empty")
	}

	normalized, err := NormalizeGitLabURL(repoURL)
	if err != nil {
		return types.RepoRef{}, err
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return types.RepoRef{}, fmt.Errorf("invalid URL format: %w", err)
	}
	host := parsed.Host
	if host == "" {
		return types.RepoRef{}, fmt.Errorf("unable to extract host from URL: %s", repoURL)
	}

	path := strings.TrimSuffix(strings.Trim(parsed.Path, "/"), ".git")
	// Browser URLs carry "/-/tree/..." after the project path.
	if idx := strings.Index(path, "/-/"); idx >= 0 {
		path = path[:idx]
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return types.RepoRef{}, fmt.Errorf("invalid GitLab URL format, expected /owner/repo: %s", repoURL)
	}
	owner := strings.Join(parts[:len(parts)-1], "/")
	repo := parts[len(parts)-1]
	if owner == "" || repo == "" {
		return types.RepoRef{}, fmt.Errorf("owner and repository name are required")
	}

	ref := types.RepoRef{Provider: types.ProviderGitLab, Owner: owner, Name: repo}
	if host != "gitlab.com" {
		ref.Host = host
	}
	return ref, nil
}

// NormalizeGitLabURL converts various GitLab URL formats to a canonical HTTPS format
func NormalizeGitLabURL(repoURL string) (string, error) {
	repoURL = strings.TrimSpace(repoURL)

	if matches := sshPattern.FindStringSubmatch(repoURL); matches != nil {
		return fmt.Sprintf("https://%s/%s", matches[1], strings.TrimSuffix(matches[2], ".git")), nil
	}

	if strings.HasPrefix(repoURL, "https://") || strings.HasPrefix(repoURL, "http://") {
		if strings.HasPrefix(repoURL, "http://") {
			repoURL = strings.Replace(repoURL, "http://", "https://", 1)
		}
		return strings.TrimSuffix(repoURL, ".git"), nil
	}

	if !strings.Contains(repoURL, "://") {
		return fmt.Sprintf("https://%s", repoURL), nil
	}
	return "", fmt.Errorf("unsupported URL format: %s", repoURL)
}

// IsGitLabSelfHosted determines if a host is a self-hosted GitLab instance
func IsGitLabSelfHosted(host string) bool {
	if host == "" || host == "gitlab.com" || strings.HasSuffix(host, ".gitlab.com") {
		return false
	}
	return strings.Contains(strings.ToLower(host), "gitlab")
}

// ConstructAPIURL builds the GitLab API base URL from a host
func ConstructAPIURL(host string) string {
	if host == "" {
		host = "gitlab.com"
	}
	return fmt.Sprintf("https://%s/api/v4", host)
}

// ProjectID returns the URL-encoded project path (group%2Frepo) used in API paths.
func ProjectID(ref types.RepoRef) string {
	return url.PathEscape(ref.Owner + "/" + ref.Name)
}

// CloneURL returns the https clone URL for ref.
func CloneURL(ref types.RepoRef) string {
	host := ref.Host
	if host == "" {
		host = "gitlab.com"
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, ref.Owner, ref.Name)
}
