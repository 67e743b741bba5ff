package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chat-tools-backend/auth"
	"chat-tools-backend/logging"
	"chat-tools-backend/restclient"
	"chat-tools-backend/types"
)

const (
	// DefaultMaxPaginationPages is the default limit for pagination loops
	DefaultMaxPaginationPages = 100
	defaultPerPage            = 100
)

var log = logging.NewLogger("gitlab")

// Client represents a GitLab API client bound to one project
type Client struct {
	api       *restclient.Client
	ref       types.RepoRef
	projectID string
	maxPages  int
}

// NewClient creates a GitLab client for ref. baseURL defaults to the instance API URL
// derived from ref.Host.
func NewClient(ref types.RepoRef, baseURL string, token auth.Token, opts ...restclient.Option) *Client {
	if baseURL == "" {
		baseURL = ConstructAPIURL(ref.Host)
	}
	opts = append([]restclient.Option{restclient.WithErrorHook(classifyError)}, opts...)
	return &Client{
		api:       restclient.New(types.ProviderGitLab, baseURL, token, opts...),
		ref:       ref,
		projectID: ProjectID(ref),
		maxPages:  DefaultMaxPaginationPages,
	}
}

// Ref returns the repository coordinates.
func (c *Client) Ref() types.RepoRef { return c.ref }

func (c *Client) projectPath(format string, args ...any) string {
	p := "/projects/" + c.projectID
	if format == "" {
		return p
	}
	return p + fmt.Sprintf(format, args...)
}

// classifyError marks lost optimistic updates. GitLab answers a stale update with 400
// and a protected branch push with 403.
func classifyError(e *types.APIError, _ http.Header, _ []byte) {
	msg := strings.ToLower(e.Message)
	switch {
	case e.StatusCode == http.StatusBadRequest &&
		(strings.Contains(msg, "has changed") || strings.Contains(msg, "already exists") || strings.Contains(msg, "doesn't exist")):
		e.Conflict = true
	case e.StatusCode == http.StatusForbidden && strings.Contains(msg, "protected branch"):
		e.Conflict = true
	case e.StatusCode == http.StatusConflict:
		e.Conflict = true
	}
}

// PaginationInfo contains pagination metadata from GitLab API responses
type PaginationInfo struct {
	TotalPages int
	NextPage   int
	PerPage    int
	Total      int
}

// extractPaginationInfo extracts pagination info from response headers
func extractPaginationInfo(h http.Header) PaginationInfo {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(h.Get(k))
		return n
	}
	return PaginationInfo{
		TotalPages: atoi("X-Total-Pages"),
		NextPage:   atoi("X-Next-Page"),
		PerPage:    atoi("X-Per-Page"),
		Total:      atoi("X-Total"),
	}
}

// getAllPages follows X-Next-Page from path until exhausted or maxPages is reached.
func getAllPages[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	var all []T
	page := 1
	for {
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(defaultPerPage))
		var batch []T
		resp, err := c.api.GetJSON(ctx, path+"?"+params.Encode(), &batch)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		next := extractPaginationInfo(resp.Header).NextPage
		if next == 0 || len(batch) == 0 {
			return all, nil
		}
		if next > c.maxPages {
			log.Warnf("Repository %s has more than %d pages at %s, truncating results", c.ref, c.maxPages, path)
			return all, nil
		}
		page = next
	}
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
