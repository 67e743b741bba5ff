// Package jira reads issues from Jira Cloud or Jira Server/Data Center.
package jira

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"chat-tools-backend/auth"
	"chat-tools-backend/restclient"
	"chat-tools-backend/types"
)

const provider types.ProviderType = "jira"

var issueFields = "summary,status,assignee,reporter,issuetype,priority,description,updated,labels"

// Client calls the Jira REST API v2.
type Client struct {
	api     *restclient.Client
	baseURL string
}

// NewClient authenticates with basic email:token on Jira Cloud (atlassian.net) and with
// a bearer personal access token on Jira Server/Data Center.
func NewClient(baseURL, email, token string, opts ...restclient.Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		api:     restclient.New(provider, baseURL+"/rest/api/2", credentials(baseURL, email, token), opts...),
		baseURL: baseURL,
	}
}

func credentials(baseURL, email, token string) auth.Token {
	if strings.Contains(baseURL, "atlassian.net") && email != "" {
		return auth.Token{Value: token, Username: email, Scheme: auth.SchemeBasic}
	}
	return auth.Token{Value: token, Scheme: auth.SchemeBearer}
}

// Issue is the subset of issue fields the tools report.
type Issue struct {
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Status      string   `json:"status,omitempty"`
	Type        string   `json:"type,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Reporter    string   `json:"reporter,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Description string   `json:"description,omitempty"`
	Updated     string   `json:"updated,omitempty"`
	URL         string   `json:"url"`
}

type named struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type rawIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string   `json:"summary"`
		Status      *named   `json:"status"`
		IssueType   *named   `json:"issuetype"`
		Priority    *named   `json:"priority"`
		Assignee    *named   `json:"assignee"`
		Reporter    *named   `json:"reporter"`
		Labels      []string `json:"labels"`
		Description string   `json:"description"`
		Updated     string   `json:"updated"`
	} `json:"fields"`
}

func nameOf(n *named) string {
	if n == nil {
		return ""
	}
	if n.DisplayName != "" {
		return n.DisplayName
	}
	return n.Name
}

func (c *Client) toIssue(r rawIssue) Issue {
	return Issue{
		Key:         r.Key,
		Summary:     r.Fields.Summary,
		Status:      nameOf(r.Fields.Status),
		Type:        nameOf(r.Fields.IssueType),
		Priority:    nameOf(r.Fields.Priority),
		Assignee:    nameOf(r.Fields.Assignee),
		Reporter:    nameOf(r.Fields.Reporter),
		Labels:      r.Fields.Labels,
		Description: r.Fields.Description,
		Updated:     r.Fields.Updated,
		URL:         c.baseURL + "/browse/" + r.Key,
	}
}

// GetIssue returns one issue by key, e.g. "PROJ-123".
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &types.ValidationError{Field: "key", Message: "is required"}
	}
	var raw rawIssue
	path := fmt.Sprintf("/issue/%s?fields=%s", url.PathEscape(key), issueFields)
	if _, err := c.api.GetJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	issue := c.toIssue(raw)
	return &issue, nil
}

// Search runs a JQL query and returns at most max issues (default 20).
func (c *Client) Search(ctx context.Context, jql string, max int) ([]Issue, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, &types.ValidationError{Field: "jql", Message: "is required"}
	}
	if max <= 0 {
		max = 20
	}
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("maxResults", strconv.Itoa(max))
	q.Set("fields", issueFields)

	var resp struct {
		Total  int        `json:"total"`
		Issues []rawIssue `json:"issues"`
	}
	if _, err := c.api.GetJSON(ctx, "/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(resp.Issues))
	for _, r := range resp.Issues {
		out = append(out, c.toIssue(r))
	}
	return out, nil
}
