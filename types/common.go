// Package types defines the provider-neutral types shared by the repository adapters,
// the commit/push pipeline and the tool layer.
package types

import (
	"fmt"
	"strings"
	"time"
)

// ProviderType identifies a source-control hosting provider.
type ProviderType string

const (
	ProviderGitHub      ProviderType = "github"
	ProviderGitLab      ProviderType = "gitlab"
	ProviderAzureDevOps ProviderType = "azuredevops"
)

// ParseProvider accepts the canonical names and a few common spellings.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "github", "gh":
		return ProviderGitHub, nil
	case "gitlab", "gl":
		return ProviderGitLab, nil
	case "azuredevops", "azure-devops", "azure", "ado":
		return ProviderAzureDevOps, nil
	}
	return "", &ValidationError{Field: "provider", Message: fmt.Sprintf("unsupported provider %q", s)}
}

// DetectProvider guesses the provider from a repository URL host.
func DetectProvider(repoURL string) ProviderType {
	lower := strings.ToLower(repoURL)
	switch {
	case strings.Contains(lower, "dev.azure.com"), strings.Contains(lower, "visualstudio.com"):
		return ProviderAzureDevOps
	case strings.Contains(lower, "gitlab"):
		return ProviderGitLab
	case strings.Contains(lower, "github"):
		return ProviderGitHub
	}
	return ""
}

// RepoRef holds the coordinates of a remote repository.
//
// GitHub and GitLab use Owner (user, org or namespace path) and Name. Azure DevOps uses
// Owner for the organization and Project for the team project.
type RepoRef struct {
	Provider ProviderType `json:"provider"`
	Host     string       `json:"host,omitempty"`
	Owner    string       `json:"owner"`
	Project  string       `json:"project,omitempty"`
	Name     string       `json:"repo"`
}

// Validate checks that the coordinates required by the provider are present.
func (r RepoRef) Validate() error {
	if r.Provider == "" {
		return &ValidationError{Field: "provider", Message: "provider is required"}
	}
	if r.Owner == "" {
		return &ValidationError{Field: "owner", Message: "owner is required"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "repo", Message: "repository name is required"}
	}
	if r.Provider == ProviderAzureDevOps && r.Project == "" {
		return &ValidationError{Field: "project", Message: "project is required for Azure DevOps"}
	}
	return nil
}

// String returns a stable identifier such as "github:octo/hello".
func (r RepoRef) String() string {
	parts := []string{r.Owner}
	if r.Project != "" {
		parts = append(parts, r.Project)
	}
	parts = append(parts, r.Name)
	id := strings.Join(parts, "/")
	if r.Host != "" {
		id = r.Host + "/" + id
	}
	return string(r.Provider) + ":" + id
}

// Branch represents a Git branch.
type Branch struct {
	Name      string     `json:"name"`
	Protected bool       `json:"protected"`
	Default   bool       `json:"default,omitempty"`
	Commit    CommitInfo `json:"commit,omitempty"`
}

// CommitInfo represents basic commit information.
type CommitInfo struct {
	SHA       string `json:"sha"`
	Message   string `json:"message,omitempty"`
	Author    string `json:"author,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// TreeEntry represents a file or directory in a repository.
type TreeEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "blob" (file) or "tree" (directory)
	Mode string `json:"mode,omitempty"`
	SHA  string `json:"sha,omitempty"`
	Size int64  `json:"size,omitempty"`
}

const (
	EntryBlob = "blob"
	EntryTree = "tree"
)

// PullRequestInput is the provider-neutral shape of a pull/merge request.
type PullRequestInput struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Validate rejects requests missing refs or a title.
func (in PullRequestInput) Validate() error {
	switch {
	case in.Source == "":
		return &ValidationError{Field: "source", Message: "source branch is required"}
	case in.Target == "":
		return &ValidationError{Field: "target", Message: "target branch is required"}
	case in.Title == "":
		return &ValidationError{Field: "title", Message: "title is required"}
	case in.Source == in.Target:
		return &ValidationError{Field: "target", Message: "source and target branches must differ"}
	}
	return nil
}

// PullRequest is the created pull/merge request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	State  string `json:"state,omitempty"`
}

// CIRun is one CI pipeline, workflow run or build.
type CIRun struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	Ref        string    `json:"ref,omitempty"`
	CommitSHA  string    `json:"commitSha,omitempty"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// BoolPtr returns a pointer to the given bool value.
func BoolPtr(b bool) *bool {
	return &b
}
