package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chat-tools-backend/types"
)

// DefaultBranch returns the project's default branch.
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	var p project
	if _, err := c.api.GetJSON(ctx, c.projectPath(""), &p); err != nil {
		return "", fmt.Errorf("get project %s: %w", c.ref, err)
	}
	return p.DefaultBranch, nil
}

// ListBranches retrieves all branches across all pages
func (c *Client) ListBranches(ctx context.Context) ([]types.Branch, error) {
	branches, err := getAllPages[Branch](ctx, c, c.projectPath("/repository/branches"), url.Values{})
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	out := make([]types.Branch, len(branches))
	for i, b := range branches {
		out[i] = MapBranchToCommon(b)
	}
	return out, nil
}

// ListDirectory lists path at ref. The tree API answers an empty array for a file path,
// so an empty result is probed through the files API to produce the File variant.
func (c *Client) ListDirectory(ctx context.Context, path, ref string, recursive bool) (types.Listing, error) {
	p := strings.Trim(path, "/")
	params := url.Values{}
	if p != "" {
		params.Set("path", p)
	}
	if ref != "" {
		params.Set("ref", ref)
	}
	if recursive {
		params.Set("recursive", "true")
	}

	entries, err := getAllPages[TreeEntry](ctx, c, c.projectPath("/repository/tree"), params)
	if err != nil {
		return types.Listing{}, fmt.Errorf("list %q: %w", p, err)
	}
	if len(entries) == 0 && p != "" {
		meta, err := c.fileMeta(ctx, p, ref)
		switch {
		case err == nil:
			return types.FileListing(MapFileToCommon(meta)), nil
		case !types.IsNotFound(err):
			return types.Listing{}, err
		}
	}

	out := make([]types.TreeEntry, len(entries))
	for i, e := range entries {
		out[i] = MapTreeEntryToCommon(e)
	}
	return types.DirectoryListing(p, out), nil
}

func (c *Client) fileMeta(ctx context.Context, path, ref string) (*FileContent, error) {
	ref, err := c.refOrDefault(ctx, ref)
	if err != nil {
		return nil, err
	}
	var fc FileContent
	q := url.Values{"ref": {ref}}
	if _, err := c.api.GetJSON(ctx, c.projectPath("/repository/files/%s?%s", url.PathEscape(path), q.Encode()), &fc); err != nil {
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}
	return &fc, nil
}

// FileContent retrieves the raw contents of a file.
func (c *Client) FileContent(ctx context.Context, path, ref string) ([]byte, error) {
	p := strings.Trim(path, "/")
	ref, err := c.refOrDefault(ctx, ref)
	if err != nil {
		return nil, err
	}
	q := url.Values{"ref": {ref}}
	data, err := c.api.GetRaw(ctx, c.projectPath("/repository/files/%s/raw?%s", url.PathEscape(p), q.Encode()), "*/*")
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", p, err)
	}
	return data, nil
}

// FileContentDecoded fetches a file through the JSON files API and decodes it.
func (c *Client) FileContentDecoded(ctx context.Context, path, ref string) ([]byte, error) {
	fc, err := c.fileMeta(ctx, strings.Trim(path, "/"), ref)
	if err != nil {
		return nil, err
	}
	if fc.Encoding != "base64" {
		return []byte(fc.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(fc.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return data, nil
}

func (c *Client) refOrDefault(ctx context.Context, ref string) (string, error) {
	if ref != "" {
		return ref, nil
	}
	return c.DefaultBranch(ctx)
}

// ListCommits returns up to limit commits on ref, optionally touching path.
func (c *Client) ListCommits(ctx context.Context, ref, path string, limit int) ([]types.CommitInfo, error) {
	if limit <= 0 || limit > defaultPerPage {
		limit = 20
	}
	q := url.Values{"per_page": {strconv.Itoa(limit)}}
	if ref != "" {
		q.Set("ref_name", ref)
	}
	if p := strings.Trim(path, "/"); p != "" {
		q.Set("path", p)
	}
	var commits []Commit
	if _, err := c.api.GetJSON(ctx, c.projectPath("/repository/commits?%s", q.Encode()), &commits); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	out := make([]types.CommitInfo, len(commits))
	for i, cm := range commits {
		out[i] = MapCommitToCommon(cm)
	}
	return out, nil
}

// Exists reports whether the project (empty path) or a path at ref exists.
func (c *Client) Exists(ctx context.Context, path, ref string) (bool, error) {
	var err error
	if strings.Trim(path, "/") == "" {
		_, err = c.api.Do(ctx, http.MethodGet, c.projectPath(""), nil)
	} else {
		_, err = c.ListDirectory(ctx, path, ref, false)
	}
	switch {
	case err == nil:
		return true, nil
	case types.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// BranchTip returns the commit the branch points at.
func (c *Client) BranchTip(ctx context.Context, branch string) (string, error) {
	var b Branch
	if _, err := c.api.GetJSON(ctx, c.projectPath("/repository/branches/%s", url.PathEscape(branch)), &b); err != nil {
		return "", fmt.Errorf("get branch %s: %w", branch, err)
	}
	return b.Commit.ID, nil
}

// ListCIRuns returns recent pipelines, optionally for one ref.
func (c *Client) ListCIRuns(ctx context.Context, ref string, limit int) ([]types.CIRun, error) {
	if limit <= 0 || limit > defaultPerPage {
		limit = 10
	}
	q := url.Values{"per_page": {strconv.Itoa(limit)}}
	if ref != "" {
		q.Set("ref", ref)
	}
	var pipelines []pipeline
	if _, err := c.api.GetJSON(ctx, c.projectPath("/pipelines?%s", q.Encode()), &pipelines); err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	out := make([]types.CIRun, len(pipelines))
	for i, p := range pipelines {
		out[i] = mapPipeline(p)
	}
	return out, nil
}
