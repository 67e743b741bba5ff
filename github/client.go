// Package github implements the GitHub repository adapter and GitHub App token minting.
package github

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chat-tools-backend/auth"
	"chat-tools-backend/restclient"
	"chat-tools-backend/types"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"
	apiVersion    = "2022-11-28"
	userAgent     = "chat-tools-backend"
	maxPages      = 100
	perPage       = 100
)

// Client is a GitHub adapter bound to one repository.
type Client struct {
	api   *restclient.Client
	ref   types.RepoRef
	owner string
	repo  string
}

// NewClient returns an adapter for ref against apiURL (DefaultAPIURL when empty).
func NewClient(ref types.RepoRef, apiURL string, token auth.Token, opts ...restclient.Option) *Client {
	if apiURL == "" {
		apiURL = APIBaseURL(ref.Host)
	}
	base := []restclient.Option{
		restclient.WithHeader("Accept", "application/vnd.github+json"),
		restclient.WithHeader("X-GitHub-Api-Version", apiVersion),
		restclient.WithHeader("User-Agent", userAgent),
		restclient.WithErrorHook(classifyError),
	}
	return &Client{
		api:   restclient.New(types.ProviderGitHub, apiURL, token, append(base, opts...)...),
		ref:   ref,
		owner: ref.Owner,
		repo:  ref.Name,
	}
}

// Ref returns the repository coordinates.
func (c *Client) Ref() types.RepoRef { return c.ref }

func (c *Client) repoPath(format string, args ...any) string {
	prefix := fmt.Sprintf("/repos/%s/%s", url.PathEscape(c.owner), url.PathEscape(c.repo))
	if format == "" {
		return prefix
	}
	return prefix + fmt.Sprintf(format, args...)
}

// classifyError flags quota exhaustion (GitHub answers 403 with a zero remaining
// header) and lost ref updates.
func classifyError(e *types.APIError, header http.Header, _ []byte) {
	msg := strings.ToLower(e.Message)
	switch {
	case e.StatusCode == http.StatusForbidden && header.Get("X-RateLimit-Remaining") == "0":
		e.RateLimited = true
		e.Remediation = "GitHub API rate limit exceeded; wait for the quota to reset"
	case e.StatusCode == http.StatusForbidden && strings.Contains(msg, "secondary rate limit"):
		e.RateLimited = true
	case strings.Contains(msg, "not a fast forward"), strings.Contains(msg, "reference cannot be updated"):
		e.Conflict = true
	case strings.Contains(msg, "protected branch"):
		e.Conflict = true
	}
}

// escapePath escapes each segment of a repository path.
func escapePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func query(kv ...string) string {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
