// Package auth defines credentials for provider APIs and the sources that mint them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Scheme selects how a token is presented in the Authorization header.
type Scheme string

const (
	SchemeBearer Scheme = "Bearer"
	// SchemeBasic sends Username and Value as basic credentials.
	SchemeBasic Scheme = "Basic"
	// SchemeBasicPAT sends ":<token>" base64-encoded, as Azure DevOps expects for PATs.
	SchemeBasicPAT Scheme = "BasicPAT"
)

// Token is a credential with an optional expiry. A zero ExpiresAt never expires.
type Token struct {
	Value     string
	Username  string
	ExpiresAt time.Time
	Scheme    Scheme
}

// ExpiresWithin reports whether the token expires within d of now.
func (t Token) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Sub(now) < d
}

// Apply sets the Authorization header for t. Empty tokens leave the request untouched.
func (t Token) Apply(req *http.Request) {
	if t.Value == "" {
		return
	}
	switch t.Scheme {
	case SchemeBasic:
		req.SetBasicAuth(t.Username, t.Value)
	case SchemeBasicPAT:
		req.SetBasicAuth("", t.Value)
	default:
		req.Header.Set("Authorization", "Bearer "+t.Value)
	}
}

// Source mints tokens.
type Source interface {
	Token(ctx context.Context) (Token, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Token, error)

func (f SourceFunc) Token(ctx context.Context) (Token, error) { return f(ctx) }

// ErrNoCredentials is returned when a provider has nothing configured.
var ErrNoCredentials = errors.New("no credentials configured")

// Static returns a source that always yields the same non-expiring token.
func Static(value string, scheme Scheme) Source {
	return SourceFunc(func(context.Context) (Token, error) {
		if strings.TrimSpace(value) == "" {
			return Token{}, ErrNoCredentials
		}
		return Token{Value: value, Scheme: scheme}, nil
	})
}

// AzureDevOpsResource is the Entra ID application id of Azure DevOps.
const AzureDevOpsResource = "499b84ac-1321-427f-aa17-267ca6975798"

// ClientCredentials mints Entra ID tokens for a service principal.
func ClientCredentials(tenantID, clientID, clientSecret string, scopes ...string) Source {
	if len(scopes) == 0 {
		scopes = []string{AzureDevOpsResource + "/.default"}
	}
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       scopes,
	}
	return clientCredentialsSource{cfg: cfg}
}

type clientCredentialsSource struct {
	cfg clientcredentials.Config
}

func (s clientCredentialsSource) Token(ctx context.Context) (Token, error) {
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("client credentials exchange failed: %w", err)
	}
	return Token{Value: tok.AccessToken, ExpiresAt: tok.Expiry, Scheme: SchemeBearer}, nil
}

// WithTokenURL overrides the token endpoint. Used against test servers.
func WithTokenURL(src Source, tokenURL string) Source {
	if cc, ok := src.(clientCredentialsSource); ok {
		cc.cfg.TokenURL = tokenURL
		return cc
	}
	return src
}
