// Package azuredevops implements the Azure Repos adapter on the Azure DevOps REST API.
package azuredevops

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
	// DefaultBaseURL is the Azure DevOps Services root.
	DefaultBaseURL = "https://dev.azure.com"
	apiVersion     = "7.1"
)

// Client is an Azure Repos adapter bound to one repository. RepoRef.Owner is the
// organization and RepoRef.Project the team project.
type Client struct {
	api     *restclient.Client
	ref     types.RepoRef
	baseURL string
}

// NewClient returns an adapter for ref. baseURL defaults to DefaultBaseURL.
func NewClient(ref types.RepoRef, baseURL string, token auth.Token, opts ...restclient.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	root := fmt.Sprintf("%s/%s/%s/_apis", baseURL, url.PathEscape(ref.Owner), url.PathEscape(ref.Project))
	opts = append([]restclient.Option{restclient.WithErrorHook(classifyError)}, opts...)
	return &Client{
		api:     restclient.New(types.ProviderAzureDevOps, root, token, opts...),
		ref:     ref,
		baseURL: baseURL,
	}
}

// Ref returns the repository coordinates.
func (c *Client) Ref() types.RepoRef { return c.ref }

// repoPath builds a git/repositories path with api-version appended to q.
func (c *Client) repoPath(sub string, q url.Values) string {
	p := "/git/repositories/" + url.PathEscape(c.ref.Name) + sub
	return withVersion(p, q)
}

func withVersion(p string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api-version", apiVersion)
	return p + "?" + q.Encode()
}

// webURL is the browser URL of the repository.
func (c *Client) webURL() string {
	return fmt.Sprintf("%s/%s/%s/_git/%s", c.baseURL, url.PathEscape(c.ref.Owner), url.PathEscape(c.ref.Project), url.PathEscape(c.ref.Name))
}

// classifyError flags ref updates lost to a concurrent push. TF401028 reports a stale
// oldObjectId and TF402455 a branch policy rejection.
func classifyError(e *types.APIError, _ http.Header, body []byte) {
	text := e.Message + " " + string(body)
	switch {
	case e.StatusCode == http.StatusConflict,
		strings.Contains(text, "TF401028"),
		strings.Contains(text, "TF402455"):
		e.Conflict = true
	}
}

// ParseRepoURL extracts coordinates from https://dev.azure.com/{org}/{project}/_git/{repo}
// and legacy https://{org}.visualstudio.com/{project}/_git/{repo} URLs.
func ParseRepoURL(raw string) (types.RepoRef, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(raw), ".git"))
	if err != nil || u.Host == "" {
		return types.RepoRef{}, fmt.Errorf("invalid Azure DevOps URL: %s", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	gitIdx := -1
	for i, p := range parts {
		if p == "_git" {
			gitIdx = i
			break
		}
	}
	if gitIdx < 0 || gitIdx+1 >= len(parts) {
		return types.RepoRef{}, fmt.Errorf("invalid Azure DevOps URL path, expected .../_git/{repo}: %s", raw)
	}
	repo := parts[gitIdx+1]
	ref := types.RepoRef{Provider: types.ProviderAzureDevOps, Name: repo}

	host := strings.ToLower(u.Host)
	switch {
	case strings.HasSuffix(host, ".visualstudio.com"):
		ref.Owner = strings.TrimSuffix(host, ".visualstudio.com")
		if gitIdx == 0 {
			ref.Project = repo
		} else {
			ref.Project = parts[gitIdx-1]
		}
	default:
		if gitIdx < 1 {
			return types.RepoRef{}, fmt.Errorf("invalid Azure DevOps URL path, missing organization: %s", raw)
		}
		ref.Owner = parts[0]
		ref.Project = repo
		if gitIdx >= 2 {
			ref.Project = parts[gitIdx-1]
		}
		if host != "dev.azure.com" {
			ref.Host = u.Host
		}
	}
	return ref, nil
}

// CloneURL returns the https clone URL for ref.
func CloneURL(ref types.RepoRef) string {
	host := ref.Host
	if host == "" {
		host = "dev.azure.com"
	}
	return fmt.Sprintf("https://%s/%s/%s/_git/%s", host, url.PathEscape(ref.Owner), url.PathEscape(ref.Project), url.PathEscape(ref.Name))
}

func branchRef(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

func shortBranch(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
