package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"chat-tools-backend/types"
)

var commitSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

// CreateBranch creates name from the tip of from (a branch or commit sha; the default
// branch when empty). An existing branch is left alone and reported as not created.
func (c *Client) CreateBranch(ctx context.Context, name, from string) (bool, error) {
	if name == "" {
		return false, &types.ValidationError{Field: "name", Message: "branch name is required"}
	}
	if _, err := c.BranchTip(ctx, name); err == nil {
		return false, nil
	} else if !types.IsNotFound(err) {
		return false, err
	}

	if from == "" {
		def, err := c.DefaultBranch(ctx)
		if err != nil {
			return false, err
		}
		from = def
	}
	sha := from
	if !commitSHA.MatchString(from) {
		tip, err := c.BranchTip(ctx, from)
		if err != nil {
			return false, err
		}
		sha = tip
	}

	body := map[string]string{"ref": "refs/heads/" + name, "sha": sha}
	if _, err := c.api.Do(ctx, http.MethodPost, c.repoPath("/git/refs"), body); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "reference already exists") {
			return false, nil
		}
		return false, fmt.Errorf("create branch %s: %w", name, err)
	}
	return true, nil
}

// CreatePullRequest opens a pull request from in.Source into in.Target.
func (c *Client) CreatePullRequest(ctx context.Context, in types.PullRequestInput) (*types.PullRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	body := map[string]any{
		"title": in.Title,
		"body":  in.Description,
		"head":  in.Source,
		"base":  in.Target,
	}
	var pr apiPullRequest
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/pulls"), body, &pr); err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	return &types.PullRequest{Number: pr.Number, URL: pr.HTMLURL, State: pr.State}, nil
}

// SetDefaultBranch changes the repository's default branch.
func (c *Client) SetDefaultBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return &types.ValidationError{Field: "branch", Message: "branch is required"}
	}
	if _, err := c.api.Do(ctx, http.MethodPatch, c.repoPath(""), map[string]string{"default_branch": branch}); err != nil {
		return fmt.Errorf("set default branch: %w", err)
	}
	return nil
}

// Push writes every change as one commit on top of in.ExpectedTip using the Git Data
// API: blobs, a tree over the tip's tree, a commit, then a non-forced ref update. A ref
// update rejected because the branch moved is reported as a conflict.
func (c *Client) Push(ctx context.Context, in types.PushInput) (string, error) {
	if in.ExpectedTip == "" {
		return "", &types.ValidationError{Field: "expectedTip", Message: "GitHub pushes need the current branch tip"}
	}
	if len(in.Changes) == 0 {
		return "", &types.ValidationError{Field: "changes", Message: "nothing to push"}
	}

	var parent apiGitCommit
	if _, err := c.api.GetJSON(ctx, c.repoPath("/git/commits/%s", in.ExpectedTip), &parent); err != nil {
		return "", fmt.Errorf("get commit %s: %w", in.ExpectedTip, err)
	}

	entries := make([]treeEntryInput, 0, len(in.Changes))
	for _, ch := range in.Changes {
		var blob apiSHA
		body := map[string]string{
			"content":  base64.StdEncoding.EncodeToString(ch.Content),
			"encoding": "base64",
		}
		if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/git/blobs"), body, &blob); err != nil {
			return "", fmt.Errorf("create blob for %s: %w", ch.Path, err)
		}
		entries = append(entries, treeEntryInput{
			Path: strings.TrimPrefix(ch.Path, "/"),
			Mode: "100644",
			Type: "blob",
			SHA:  blob.SHA,
		})
	}

	var tree apiSHA
	treeBody := map[string]any{"base_tree": parent.Tree.SHA, "tree": entries}
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/git/trees"), treeBody, &tree); err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}

	var commit apiSHA
	commitBody := map[string]any{"message": in.Message, "tree": tree.SHA, "parents": []string{in.ExpectedTip}}
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/git/commits"), commitBody, &commit); err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}

	refBody := map[string]any{"sha": commit.SHA, "force": false}
	if _, err := c.api.Do(ctx, http.MethodPatch, c.repoPath("/git/refs/heads/%s", escapePath(in.Branch)), refBody); err != nil {
		return "", fmt.Errorf("update branch %s: %w", in.Branch, err)
	}
	return commit.SHA, nil
}
