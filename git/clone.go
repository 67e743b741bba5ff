// Package git clones remote repositories into session workspaces.
package git

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"chat-tools-backend/logging"
	"chat-tools-backend/types"

	"github.com/sirupsen/logrus"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

var log = logging.NewLogger("git")

// CloneOptions selects what to clone and where.
type CloneOptions struct {
	URL string
	// Branch defaults to the remote HEAD.
	Branch string
	// Dir must not exist or be empty.
	Dir string
	// Token authenticates HTTPS clones. Username defaults per provider.
	Token    string
	Username string
	// Depth limits history; 0 clones everything.
	Depth int
}

// CloneResult describes the checked-out tree.
type CloneResult struct {
	Dir    string `json:"dir"`
	Branch string `json:"branch"`
	Head   string `json:"head"`
}

// ErrAlreadyCloned is returned when Dir already holds a repository.
var ErrAlreadyCloned = errors.New("directory already contains a repository")

// BasicAuthUsername is the username paired with a token for HTTPS clones.
func BasicAuthUsername(provider types.ProviderType) string {
	switch provider {
	case types.ProviderGitLab:
		return "oauth2"
	case types.ProviderAzureDevOps:
		return "pat"
	default:
		return "x-access-token"
	}
}

// Clone checks out opts.URL into opts.Dir.
func Clone(ctx context.Context, opts CloneOptions) (*CloneResult, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, &types.ValidationError{Field: "url", Message: "is required"}
	}
	if opts.Dir == "" {
		return nil, &types.ValidationError{Field: "dir", Message: "is required"}
	}
	if _, err := gogit.PlainOpen(opts.Dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCloned, opts.Dir)
	}

	cloneOpts := &gogit.CloneOptions{
		URL:          opts.URL,
		Depth:        opts.Depth,
		SingleBranch: opts.Branch != "",
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}
	if opts.Token != "" {
		user := opts.Username
		if user == "" {
			user = BasicAuthUsername(types.DetectProvider(opts.URL))
		}
		cloneOpts.Auth = &githttp.BasicAuth{Username: user, Password: opts.Token}
	}

	log.WithFields(logrus.Fields{"url": opts.URL, "branch": opts.Branch, "depth": opts.Depth}).Info("Cloning repository")
	repo, err := gogit.PlainCloneContext(ctx, opts.Dir, false, cloneOpts)
	if err != nil {
		_ = os.RemoveAll(opts.Dir)
		return nil, mapCloneError(opts.URL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return &CloneResult{Dir: opts.Dir, Branch: head.Name().Short(), Head: head.Hash().String()}, nil
}

func mapCloneError(url string, err error) error {
	provider := types.DetectProvider(url)
	var noMatch gogit.NoMatchingRefSpecError
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, plumbing.ErrReferenceNotFound), errors.As(err, &noMatch):
		return &types.APIError{Provider: provider, StatusCode: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return &types.APIError{Provider: provider, StatusCode: http.StatusUnauthorized, Message: err.Error(), Remediation: types.ProviderGuidance(provider, http.StatusUnauthorized)}
	default:
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}
}

// DeriveRepoFolderFromURL extracts the repository folder name from a git URL, handling
// scp-like "git@host:owner/repo.git" forms.
func DeriveRepoFolderFromURL(u string) string {
	s := strings.TrimSpace(u)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "git@") && strings.Contains(s, ":") {
		parts := strings.SplitN(s, ":", 2)
		s = "https://" + strings.TrimPrefix(parts[0], "git@") + "/" + parts[1]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimRight(s, "/")
	segs := strings.Split(s, "/")
	return strings.TrimSpace(strings.TrimSuffix(segs[len(segs)-1], ".git"))
}
