// Package repo is the provider-neutral view of a remote repository: the Repository
// interface every adapter satisfies, a factory resolving credentials through the
// session token cache, and the per-session content fetcher.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-tools-backend/auth"
	"chat-tools-backend/azuredevops"
	"chat-tools-backend/github"
	"chat-tools-backend/gitlab"
	"chat-tools-backend/restclient"
	"chat-tools-backend/session"
	"chat-tools-backend/types"
)

// Repository is one remote repository on a hosting provider.
type Repository interface {
	Ref() types.RepoRef

	ListBranches(ctx context.Context) ([]types.Branch, error)
	ListDirectory(ctx context.Context, path, ref string, recursive bool) (types.Listing, error)
	ListCommits(ctx context.Context, ref, path string, limit int) ([]types.CommitInfo, error)
	DefaultBranch(ctx context.Context) (string, error)
	Exists(ctx context.Context, path, ref string) (bool, error)
	BranchTip(ctx context.Context, branch string) (string, error)
	FileContent(ctx context.Context, path, ref string) ([]byte, error)
	ListCIRuns(ctx context.Context, ref string, limit int) ([]types.CIRun, error)

	CreateBranch(ctx context.Context, name, from string) (bool, error)
	CreatePullRequest(ctx context.Context, in types.PullRequestInput) (*types.PullRequest, error)
	SetDefaultBranch(ctx context.Context, branch string) error
	Push(ctx context.Context, in types.PushInput) (string, error)
}

var (
	_ Repository = (*github.Client)(nil)
	_ Repository = (*gitlab.Client)(nil)
	_ Repository = (*azuredevops.Client)(nil)
)

// Opener opens a Repository for a session. *Factory implements it; tests substitute
// fakes.
type Opener interface {
	Open(ctx context.Context, sess *session.Session, ref types.RepoRef) (Repository, error)
}

// Factory builds adapters with per-provider credentials and API roots.
type Factory struct {
	sources    map[types.ProviderType]auth.Source
	baseURLs   map[types.ProviderType]string
	clientOpts []restclient.Option
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSource sets the credential source for provider.
func WithSource(provider types.ProviderType, src auth.Source) FactoryOption {
	return func(f *Factory) { f.sources[provider] = src }
}

// WithBaseURL overrides the API root for provider.
func WithBaseURL(provider types.ProviderType, baseURL string) FactoryOption {
	return func(f *Factory) {
		if baseURL != "" {
			f.baseURLs[provider] = baseURL
		}
	}
}

// WithClientOptions applies opts to every REST client the factory creates.
func WithClientOptions(opts ...restclient.Option) FactoryOption {
	return func(f *Factory) { f.clientOpts = append(f.clientOpts, opts...) }
}

// NewFactory returns a Factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		sources:  map[types.ProviderType]auth.Source{},
		baseURLs: map[types.ProviderType]string{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open validates ref, resolves a token through the session cache (purpose = provider
// name) and returns the provider adapter. A provider without credentials is opened
// anonymously.
func (f *Factory) Open(ctx context.Context, sess *session.Session, ref types.RepoRef) (Repository, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	token, err := f.Token(ctx, sess, ref.Provider)
	if err != nil {
		return nil, err
	}

	baseURL := f.baseURLs[ref.Provider]
	switch ref.Provider {
	case types.ProviderGitHub:
		if ref.Host != "" {
			baseURL = github.APIBaseURL(ref.Host)
		}
		return github.NewClient(ref, baseURL, token, f.clientOpts...), nil
	case types.ProviderGitLab:
		if ref.Host != "" {
			baseURL = gitlab.ConstructAPIURL(ref.Host)
		}
		return gitlab.NewClient(ref, baseURL, token, f.clientOpts...), nil
	case types.ProviderAzureDevOps:
		if ref.Host != "" {
			baseURL = "https://" + ref.Host
		}
		return azuredevops.NewClient(ref, baseURL, token, f.clientOpts...), nil
	}
	return nil, &types.ValidationError{Field: "provider", Message: fmt.Sprintf("unsupported provider %q", ref.Provider)}
}

// Token returns the session's cached credential for provider, or a zero Token when the
// provider has nothing configured.
func (f *Factory) Token(ctx context.Context, sess *session.Session, provider types.ProviderType) (auth.Token, error) {
	src, ok := f.sources[provider]
	if !ok || src == nil {
		return auth.Token{}, nil
	}
	t, err := sess.Token(ctx, string(provider), src)
	if errors.Is(err, auth.ErrNoCredentials) {
		return auth.Token{}, nil
	}
	return t, err
}

// ParseURL detects the provider of a repository URL and parses its coordinates.
func ParseURL(raw string) (types.RepoRef, error) {
	switch types.DetectProvider(raw) {
	case types.ProviderGitHub:
		return github.ParseRepoURL(raw)
	case types.ProviderGitLab:
		return gitlab.ParseGitLabURL(raw)
	case types.ProviderAzureDevOps:
		return azuredevops.ParseRepoURL(raw)
	}
	return types.RepoRef{}, &types.ValidationError{Field: "url", Message: fmt.Sprintf("cannot detect provider of %q", raw)}
}

// ParseRepository accepts a repository URL or a GitHub "owner/name" shorthand.
func ParseRepository(s string) (types.RepoRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.RepoRef{}, &types.ValidationError{Field: "repository", Message: "is required"}
	}
	if !strings.Contains(s, "://") && !strings.HasPrefix(s, "git@") && strings.Count(s, "/") == 1 {
		owner, name, _ := strings.Cut(s, "/")
		ref := types.RepoRef{Provider: types.ProviderGitHub, Owner: owner, Name: name}
		return ref, ref.Validate()
	}
	return ParseURL(s)
}

// CloneURL returns the https clone URL of ref.
func CloneURL(ref types.RepoRef) string {
	switch ref.Provider {
	case types.ProviderGitLab:
		return gitlab.CloneURL(ref)
	case types.ProviderAzureDevOps:
		return azuredevops.CloneURL(ref)
	}
	return github.CloneURL(ref)
}
