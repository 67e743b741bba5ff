package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chat-tools-backend/types"
)

// CreateBranch creates name from from (the default branch when empty). An existing
// branch is reported as not created.
func (c *Client) CreateBranch(ctx context.Context, name, from string) (bool, error) {
	if name == "" {
		return false, &types.ValidationError{Field: "name", Message: "branch name is required"}
	}
	if _, err := c.BranchTip(ctx, name); err == nil {
		return false, nil
	} else if !types.IsNotFound(err) {
		return false, err
	}
	from, err := c.refOrDefault(ctx, from)
	if err != nil {
		return false, err
	}

	q := url.Values{"branch": {name}, "ref": {from}}
	if _, err := c.api.Do(ctx, http.MethodPost, c.projectPath("/repository/branches?%s", q.Encode()), nil); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return false, nil
		}
		return false, fmt.Errorf("create branch %s: %w", name, err)
	}
	return true, nil
}

// CreatePullRequest opens a merge request.
func (c *Client) CreatePullRequest(ctx context.Context, in types.PullRequestInput) (*types.PullRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	body := map[string]string{
		"source_branch": in.Source,
		"target_branch": in.Target,
		"title":         in.Title,
		"description":   in.Description,
	}
	var mr mergeRequest
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.projectPath("/merge_requests"), body, &mr); err != nil {
		return nil, fmt.Errorf("create merge request: %w", err)
	}
	return &types.PullRequest{Number: mr.IID, URL: mr.WebURL, State: mr.State}, nil
}

// SetDefaultBranch changes the project's default branch.
func (c *Client) SetDefaultBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return &types.ValidationError{Field: "branch", Message: "branch is required"}
	}
	if _, err := c.api.Do(ctx, http.MethodPut, c.projectPath(""), map[string]string{"default_branch": branch}); err != nil {
		return fmt.Errorf("set default branch: %w", err)
	}
	return nil
}

// Push commits every change through the Commits API. The branch must still be at
// in.ExpectedTip; updates carry it as last_commit_id so GitLab rejects files changed
// after it.
func (c *Client) Push(ctx context.Context, in types.PushInput) (string, error) {
	if len(in.Changes) == 0 {
		return "", &types.ValidationError{Field: "changes", Message: "nothing to push"}
	}
	if in.ExpectedTip != "" {
		tip, err := c.BranchTip(ctx, in.Branch)
		if err != nil {
			return "", err
		}
		if tip != in.ExpectedTip {
			return "", &types.APIError{
				Provider:   types.ProviderGitLab,
				StatusCode: http.StatusConflict,
				Message:    fmt.Sprintf("branch %s moved from %s to %s", in.Branch, in.ExpectedTip, tip),
				Conflict:   true,
			}
		}
	}

	actions := make([]commitAction, 0, len(in.Changes))
	for _, ch := range in.Changes {
		a := commitAction{
			Action:   "create",
			FilePath: strings.TrimPrefix(ch.Path, "/"),
			Content:  base64.StdEncoding.EncodeToString(ch.Content),
			Encoding: "base64",
		}
		if ch.Type == types.ChangeEdit {
			a.Action = "update"
			a.LastCommitID = in.ExpectedTip
		}
		actions = append(actions, a)
	}

	body := map[string]any{
		"branch":         in.Branch,
		"commit_message": in.Message,
		"actions":        actions,
	}
	var commit Commit
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.projectPath("/repository/commits"), body, &commit); err != nil {
		return "", fmt.Errorf("commit to %s: %w", in.Branch, err)
	}
	return commit.ID, nil
}
