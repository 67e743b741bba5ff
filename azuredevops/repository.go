package azuredevops

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"chat-tools-backend/types"
)

const (
	maxPages     = 100
	refsPageSize = 1000
)

// DefaultBranch returns the repository's default branch without the refs/heads/ prefix.
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	var repo repository
	if _, err := c.api.GetJSON(ctx, c.repoPath("", nil), &repo); err != nil {
		return "", fmt.Errorf("get repository %s: %w", c.ref, err)
	}
	return shortBranch(repo.DefaultBranch), nil
}

// ListBranches lists refs/heads, following x-ms-continuationtoken.
func (c *Client) ListBranches(ctx context.Context) ([]types.Branch, error) {
	def, err := c.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Branch
	token := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{"filter": {"heads/"}, "$top": {strconv.Itoa(refsPageSize)}}
		if token != "" {
			q.Set("continuationToken", token)
		}
		var refs listResponse[gitRef]
		resp, err := c.api.GetJSON(ctx, c.repoPath("/refs", q), &refs)
		if err != nil {
			return nil, fmt.Errorf("list branches: %w", err)
		}
		for _, r := range refs.Value {
			name := shortBranch(r.Name)
			out = append(out, types.Branch{
				Name:      name,
				Protected: r.IsLocked,
				Default:   name == def,
				Commit:    types.CommitInfo{SHA: r.ObjectID},
			})
		}
		token = resp.Header.Get("x-ms-continuationtoken")
		if token == "" {
			break
		}
	}
	return out, nil
}

func versionParams(q url.Values, ref string) url.Values {
	if ref != "" {
		q.Set("versionDescriptor.version", ref)
		q.Set("versionDescriptor.versionType", "branch")
	}
	return q
}

// ListDirectory lists path at ref. The items API returns the scope item itself first;
// a lone non-folder item means path names a file.
func (c *Client) ListDirectory(ctx context.Context, p, ref string, recursive bool) (types.Listing, error) {
	scope := "/" + strings.Trim(p, "/")
	level := "OneLevel"
	if recursive {
		level = "Full"
	}
	q := versionParams(url.Values{"scopePath": {scope}, "recursionLevel": {level}}, ref)

	var items listResponse[item]
	if _, err := c.api.GetJSON(ctx, c.repoPath("/items", q), &items); err != nil {
		return types.Listing{}, fmt.Errorf("list %q: %w", scope, err)
	}

	rel := strings.Trim(p, "/")
	if len(items.Value) == 1 && !items.Value[0].IsFolder && items.Value[0].Path == scope && scope != "/" {
		return types.FileListing(toEntry(items.Value[0])), nil
	}
	entries := make([]types.TreeEntry, 0, len(items.Value))
	for _, it := range items.Value {
		if it.Path == scope {
			continue
		}
		entries = append(entries, toEntry(it))
	}
	return types.DirectoryListing(rel, entries), nil
}

func toEntry(it item) types.TreeEntry {
	typ := types.EntryBlob
	if it.IsFolder || it.GitObjectType == "tree" {
		typ = types.EntryTree
	}
	return types.TreeEntry{
		Name: path.Base(it.Path),
		Path: strings.TrimPrefix(it.Path, "/"),
		Type: typ,
		SHA:  it.ObjectID,
		Size: it.Size,
	}
}

// FileContent downloads a file's raw bytes.
func (c *Client) FileContent(ctx context.Context, p, ref string) ([]byte, error) {
	q := versionParams(url.Values{"path": {"/" + strings.Trim(p, "/")}, "$format": {"octetStream"}}, ref)
	data, err := c.api.GetRaw(ctx, c.repoPath("/items", q), "application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", p, err)
	}
	return data, nil
}

// ListCommits returns up to limit commits on ref, optionally touching path.
func (c *Client) ListCommits(ctx context.Context, ref, p string, limit int) ([]types.CommitInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := url.Values{"searchCriteria.$top": {strconv.Itoa(limit)}}
	if ref != "" {
		q.Set("searchCriteria.itemVersion.version", ref)
	}
	if rel := strings.Trim(p, "/"); rel != "" {
		q.Set("searchCriteria.itemPath", "/"+rel)
	}
	var commits listResponse[commit]
	if _, err := c.api.GetJSON(ctx, c.repoPath("/commits", q), &commits); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	out := make([]types.CommitInfo, 0, len(commits.Value))
	for _, cm := range commits.Value {
		out = append(out, types.CommitInfo{
			SHA:       cm.CommitID,
			Message:   cm.Comment,
			Author:    cm.Author.Name,
			Timestamp: cm.Author.Date.Format(time.RFC3339),
		})
	}
	return out, nil
}

// Exists reports whether the repository (empty path) or a path at ref exists.
func (c *Client) Exists(ctx context.Context, p, ref string) (bool, error) {
	target := c.repoPath("", nil)
	if rel := strings.Trim(p, "/"); rel != "" {
		target = c.repoPath("/items", versionParams(url.Values{"path": {"/" + rel}}, ref))
	}
	_, err := c.api.Do(ctx, http.MethodGet, target, nil)
	switch {
	case err == nil:
		return true, nil
	case types.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("check existence of %q: %w", p, err)
	}
}

// BranchTip returns the commit the branch points at.
func (c *Client) BranchTip(ctx context.Context, branch string) (string, error) {
	full := branchRef(branch)
	var refs listResponse[gitRef]
	q := url.Values{"filter": {strings.TrimPrefix(full, "refs/")}}
	if _, err := c.api.GetJSON(ctx, c.repoPath("/refs", q), &refs); err != nil {
		return "", fmt.Errorf("get branch %s: %w", branch, err)
	}
	// filter is a prefix match.
	for _, r := range refs.Value {
		if r.Name == full {
			return r.ObjectID, nil
		}
	}
	return "", &types.APIError{
		Provider:   types.ProviderAzureDevOps,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("branch %s not found", branch),
	}
}

// ListCIRuns returns recent Azure Pipelines builds of this repository.
func (c *Client) ListCIRuns(ctx context.Context, ref string, limit int) ([]types.CIRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	q := url.Values{
		"$top":           {strconv.Itoa(limit)},
		"repositoryId":   {c.ref.Name},
		"repositoryType": {"TfsGit"},
	}
	if ref != "" {
		q.Set("branchName", branchRef(ref))
	}
	var builds listResponse[build]
	if _, err := c.api.GetJSON(ctx, withVersion("/build/builds", q), &builds); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	out := make([]types.CIRun, 0, len(builds.Value))
	for _, b := range builds.Value {
		out = append(out, types.CIRun{
			ID:         strconv.FormatInt(b.ID, 10),
			Name:       b.Definition.Name,
			Status:     b.Status,
			Conclusion: b.Result,
			Ref:        shortBranch(b.SourceBranch),
			CommitSHA:  b.SourceVersion,
			URL:        b.Links.Web.Href,
			CreatedAt:  b.QueueTime,
		})
	}
	return out, nil
}
