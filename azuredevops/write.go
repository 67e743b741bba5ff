package azuredevops

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

// CreateBranch creates name from from (a branch or commit; the default branch when
// empty). An existing branch is reported as not created.
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

	body := []refUpdate{{Name: branchRef(name), OldObjectID: zeroObjectID, NewObjectID: sha}}
	var res listResponse[refUpdateResult]
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/refs", nil), body, &res); err != nil {
		return false, fmt.Errorf("create branch %s: %w", name, err)
	}
	for _, r := range res.Value {
		if !r.Success {
			if strings.EqualFold(r.UpdateStatus, "staleOldObjectId") {
				return false, nil
			}
			return false, fmt.Errorf("create branch %s: %s %s", name, r.UpdateStatus, r.CustomMessage)
		}
	}
	return true, nil
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, in types.PullRequestInput) (*types.PullRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	body := map[string]string{
		"sourceRefName": branchRef(in.Source),
		"targetRefName": branchRef(in.Target),
		"title":         in.Title,
		"description":   in.Description,
	}
	var pr pullRequest
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/pullrequests", nil), body, &pr); err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	return &types.PullRequest{
		Number: pr.PullRequestID,
		URL:    fmt.Sprintf("%s/pullrequest/%d", c.webURL(), pr.PullRequestID),
		State:  pr.Status,
	}, nil
}

// SetDefaultBranch changes the repository's default branch.
func (c *Client) SetDefaultBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return &types.ValidationError{Field: "branch", Message: "branch is required"}
	}
	body := map[string]string{"defaultBranch": branchRef(branch)}
	if _, err := c.api.Do(ctx, http.MethodPatch, c.repoPath("", nil), body); err != nil {
		return fmt.Errorf("set default branch: %w", err)
	}
	return nil
}

// Push creates one commit through the pushes API. The ref update names in.ExpectedTip
// as oldObjectId, so a branch that moved is rejected with TF401028.
func (c *Client) Push(ctx context.Context, in types.PushInput) (string, error) {
	if len(in.Changes) == 0 {
		return "", &types.ValidationError{Field: "changes", Message: "nothing to push"}
	}
	old := in.ExpectedTip
	if old == "" {
		old = zeroObjectID
	}

	changes := make([]pushChange, 0, len(in.Changes))
	for _, ch := range in.Changes {
		var pc pushChange
		pc.ChangeType = string(ch.Type)
		pc.Item.Path = "/" + strings.TrimPrefix(ch.Path, "/")
		pc.NewContent.Content = base64.StdEncoding.EncodeToString(ch.Content)
		pc.NewContent.ContentType = "base64encoded"
		changes = append(changes, pc)
	}
	body := pushRequest{
		RefUpdates: []refUpdate{{Name: branchRef(in.Branch), OldObjectID: old}},
		Commits:    []pushCommit{{Comment: in.Message, Changes: changes}},
	}

	var res pushResponse
	if _, err := c.api.SendJSON(ctx, http.MethodPost, c.repoPath("/pushes", nil), body, &res); err != nil {
		return "", fmt.Errorf("push to %s: %w", in.Branch, err)
	}
	if len(res.Commits) == 0 {
		return "", fmt.Errorf("push to %s: response carried no commit", in.Branch)
	}
	return res.Commits[0].CommitID, nil
}
