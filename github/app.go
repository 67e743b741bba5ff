package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"chat-tools-backend/auth"
	"chat-tools-backend/restclient"
	"chat-tools-backend/types"

	"github.com/golang-jwt/jwt/v5"
)

// cacheMargin keeps installation tokens from being handed out too close to expiry.
const cacheMargin = 3 * time.Minute

// TokenManager mints GitHub App installation tokens and caches them per installation.
type TokenManager struct {
	AppID      string
	PrivateKey *rsa.PrivateKey
	apiURL     string
	now        func() time.Time

	cacheMu sync.Mutex
	cache   map[int64]auth.Token
}

// NewTokenManager parses privateKey (raw PEM or base64-encoded PEM). It returns nil
// without error when appID is empty, meaning the App is not configured.
func NewTokenManager(appID, privateKey, apiURL string) (*TokenManager, error) {
	if appID == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(privateKey)
	if raw == "" {
		return nil, fmt.Errorf("GitHub App private key not set")
	}
	pemBytes := []byte(raw)
	if !strings.Contains(raw, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to base64-decode GitHub App private key: %w", err)
		}
		pemBytes = decoded
	}
	key, err := parsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub App private key: %w", err)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &TokenManager{
		AppID:      appID,
		PrivateKey: key,
		apiURL:     apiURL,
		now:        time.Now,
		cache:      map[int64]auth.Token{},
	}, nil
}

func parsePrivateKeyPEM(keyData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaKey, nil
}

// GenerateJWT signs the short-lived App JWT used to mint installation tokens.
func (m *TokenManager) GenerateJWT() (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"iat": now.Add(-30 * time.Second).Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": m.AppID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.PrivateKey)
}

// InstallationToken returns a cached token with more than cacheMargin left or mints a
// new one.
func (m *TokenManager) InstallationToken(ctx context.Context, installationID int64) (auth.Token, error) {
	if m == nil {
		return auth.Token{}, fmt.Errorf("GitHub App not configured")
	}
	m.cacheMu.Lock()
	if tok, ok := m.cache[installationID]; ok && !tok.ExpiresWithin(m.now(), cacheMargin) {
		m.cacheMu.Unlock()
		return tok, nil
	}
	m.cacheMu.Unlock()

	signed, err := m.GenerateJWT()
	if err != nil {
		return auth.Token{}, fmt.Errorf("failed to generate JWT: %w", err)
	}
	api := restclient.New(types.ProviderGitHub, m.apiURL, auth.Token{Value: signed, Scheme: auth.SchemeBearer},
		restclient.WithHeader("Accept", "application/vnd.github+json"),
		restclient.WithHeader("X-GitHub-Api-Version", apiVersion),
		restclient.WithHeader("User-Agent", userAgent),
	)
	var parsed struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if _, err := api.SendJSON(ctx, http.MethodPost, path, map[string]any{}, &parsed); err != nil {
		return auth.Token{}, fmt.Errorf("GitHub token mint failed: %w", err)
	}

	tok := auth.Token{Value: parsed.Token, ExpiresAt: parsed.ExpiresAt, Scheme: auth.SchemeBearer}
	m.cacheMu.Lock()
	m.cache[installationID] = tok
	m.cacheMu.Unlock()
	return tok, nil
}

// Source returns an auth.Source minting tokens for one installation.
func (m *TokenManager) Source(installationID int64) auth.Source {
	return auth.SourceFunc(func(ctx context.Context) (auth.Token, error) {
		return m.InstallationToken(ctx, installationID)
	})
}
