package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chat-tools-backend/types"
)

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	var repo apiRepository
	if _, err := c.api.GetJSON(ctx, c.repoPath(""), &repo); err != nil {
		return "", fmt.Errorf("get repository %s/%s: %w", c.owner, c.repo, err)
	}
	return repo.DefaultBranch, nil
}

// ListBranches returns every branch, following pagination up to maxPages.
func (c *Client) ListBranches(ctx context.Context) ([]types.Branch, error) {
	defaultBranch, err := c.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}

	var out []types.Branch
	for page := 1; page <= maxPages; page++ {
		var batch []apiBranch
		path := c.repoPath("/branches") + query("per_page", strconv.Itoa(perPage), "page", strconv.Itoa(page))
		if _, err := c.api.GetJSON(ctx, path, &batch); err != nil {
			return nil, fmt.Errorf("list branches: %w", err)
		}
		for _, b := range batch {
			out = append(out, types.Branch{
				Name:      b.Name,
				Protected: b.Protected,
				Default:   b.Name == defaultBranch,
				Commit:    types.CommitInfo{SHA: b.Commit.SHA},
			})
		}
		if len(batch) < perPage {
			break
		}
	}
	return out, nil
}

// ListDirectory lists path at ref. The contents API answers with an array for
// directories and an object for files; a file yields the File variant.
func (c *Client) ListDirectory(ctx context.Context, path, ref string, recursive bool) (types.Listing, error) {
	p := strings.Trim(path, "/")

	contentsPath := c.repoPath("/contents")
	if p != "" {
		contentsPath += "/" + escapePath(p)
	}
	resp, err := c.api.Do(ctx, http.MethodGet, contentsPath+query("ref", ref), nil)
	if err != nil {
		return types.Listing{}, fmt.Errorf("list %q: %w", p, err)
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) > 0 && body[0] == '{' {
		var item apiContent
		if err := json.Unmarshal(body, &item); err != nil {
			return types.Listing{}, fmt.Errorf("failed to parse contents response: %w", err)
		}
		if item.Type != "dir" {
			return types.FileListing(contentToEntry(item)), nil
		}
	}

	if recursive {
		entries, err := c.treeUnder(ctx, p, ref)
		if err != nil {
			return types.Listing{}, err
		}
		return types.DirectoryListing(p, entries), nil
	}

	var items []apiContent
	if err := json.Unmarshal(body, &items); err != nil {
		return types.Listing{}, fmt.Errorf("failed to parse contents response: %w", err)
	}
	entries := make([]types.TreeEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, contentToEntry(item))
	}
	return types.DirectoryListing(p, entries), nil
}

// treeUnder returns every entry below dir using the recursive trees API.
func (c *Client) treeUnder(ctx context.Context, dir, ref string) ([]types.TreeEntry, error) {
	if ref == "" {
		def, err := c.DefaultBranch(ctx)
		if err != nil {
			return nil, err
		}
		ref = def
	}
	var tree apiTree
	if _, err := c.api.GetJSON(ctx, c.repoPath("/git/trees/%s", escapePath(ref))+query("recursive", "1"), &tree); err != nil {
		return nil, fmt.Errorf("get tree %s: %w", ref, err)
	}

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	var entries []types.TreeEntry
	for _, e := range tree.Tree {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		typ := types.EntryBlob
		if e.Type == "tree" {
			typ = types.EntryTree
		}
		entries = append(entries, types.TreeEntry{
			Name: e.Path[strings.LastIndex(e.Path, "/")+1:],
			Path: e.Path,
			Type: typ,
			Mode: e.Mode,
			SHA:  e.SHA,
			Size: e.Size,
		})
	}
	return entries, nil
}

func contentToEntry(item apiContent) types.TreeEntry {
	typ := types.EntryBlob
	if item.Type == "dir" {
		typ = types.EntryTree
	}
	return types.TreeEntry{Name: item.Name, Path: item.Path, Type: typ, SHA: item.SHA, Size: item.Size}
}

// ListCommits returns up to limit commits reachable from ref, optionally touching path.
func (c *Client) ListCommits(ctx context.Context, ref, path string, limit int) ([]types.CommitInfo, error) {
	if limit <= 0 || limit > perPage {
		limit = 20
	}
	var commits []apiCommit
	q := query("sha", ref, "path", strings.Trim(path, "/"), "per_page", strconv.Itoa(limit))
	if _, err := c.api.GetJSON(ctx, c.repoPath("/commits")+q, &commits); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	out := make([]types.CommitInfo, 0, len(commits))
	for _, cm := range commits {
		out = append(out, types.CommitInfo{
			SHA:       cm.SHA,
			Message:   cm.Commit.Message,
			Author:    cm.Commit.Author.Name,
			Timestamp: cm.Commit.Author.Date.Format(time.RFC3339),
		})
	}
	return out, nil
}

// Exists reports whether the repository (empty path) or a path at ref exists.
func (c *Client) Exists(ctx context.Context, path, ref string) (bool, error) {
	p := strings.Trim(path, "/")
	target := c.repoPath("")
	if p != "" {
		target = c.repoPath("/contents/%s", escapePath(p)) + query("ref", ref)
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
	var ref apiRef
	if _, err := c.api.GetJSON(ctx, c.repoPath("/git/ref/heads/%s", escapePath(branch)), &ref); err != nil {
		return "", fmt.Errorf("get branch %s: %w", branch, err)
	}
	return ref.Object.SHA, nil
}

// FileContent downloads a file's raw bytes.
func (c *Client) FileContent(ctx context.Context, path, ref string) ([]byte, error) {
	p := strings.Trim(path, "/")
	data, err := c.api.GetRaw(ctx, c.repoPath("/contents/%s", escapePath(p))+query("ref", ref), "application/vnd.github.raw")
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", p, err)
	}
	return data, nil
}

// ListCIRuns returns recent GitHub Actions workflow runs, optionally for one branch.
func (c *Client) ListCIRuns(ctx context.Context, ref string, limit int) ([]types.CIRun, error) {
	if limit <= 0 || limit > perPage {
		limit = 10
	}
	var runs apiWorkflowRuns
	q := query("branch", ref, "per_page", strconv.Itoa(limit))
	if _, err := c.api.GetJSON(ctx, c.repoPath("/actions/runs")+q, &runs); err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	out := make([]types.CIRun, 0, len(runs.WorkflowRuns))
	for _, r := range runs.WorkflowRuns {
		out = append(out, types.CIRun{
			ID:         strconv.FormatInt(r.ID, 10),
			Name:       r.Name,
			Status:     r.Status,
			Conclusion: r.Conclusion,
			Ref:        r.HeadBranch,
			CommitSHA:  r.HeadSHA,
			URL:        r.HTMLURL,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}
