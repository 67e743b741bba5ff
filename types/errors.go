package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is matched by errors.Is for any remote resource that does not exist.
var ErrNotFound = errors.New("not found")

// APIError represents a failed call to a provider REST API.
type APIError struct {
	Provider    ProviderType `json:"provider,omitempty"`
	StatusCode  int          `json:"statusCode"`
	Message     string       `json:"message"`
	Remediation string       `json:"remediation,omitempty"`
	RawError    string       `json:"rawError,omitempty"`
	RequestID   string       `json:"requestId,omitempty"`
	// Conflict marks an optimistic-concurrency loss: the branch moved underneath the push.
	Conflict bool `json:"conflict,omitempty"`
	// RateLimited marks quota exhaustion, including providers that answer 403.
	RateLimited bool `json:"rateLimited,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, msg)
	} else {
		msg = fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
	}
	if e.Remediation != "" {
		return msg + ". " + e.Remediation
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.Conflict || e.RateLimited ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// ValidationError reports missing or malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsNotFound reports whether err means the remote resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is an optimistic-concurrency loss.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Conflict
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRetryable reports whether err belongs to the conflict/retryable class: conflicts,
// rate limiting and provider 5xx responses.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// ProviderGuidance returns remediation text for a status code.
func ProviderGuidance(provider ProviderType, statusCode int) string {
	switch provider {
	case ProviderGitHub:
		switch statusCode {
		case http.StatusUnauthorized:
			return "Ensure the GitHub App is installed on the repository or configure a valid GitHub token"
		case http.StatusForbidden:
			return "Ensure the GitHub App or token has write access to the repository"
		case http.StatusNotFound:
			return "Verify the repository coordinates and that the token can see the repository on GitHub"
		}
	case ProviderGitLab:
		switch statusCode {
		case http.StatusUnauthorized:
			return "Configure a valid GitLab Personal Access Token"
		case http.StatusForbidden:
			return "Ensure the GitLab token has 'api', 'read_repository', and 'write_repository' scopes"
		case http.StatusNotFound:
			return "Verify the project path and that the token can see the project on GitLab"
		}
	case ProviderAzureDevOps:
		switch statusCode {
		case http.StatusUnauthorized:
			return "Configure a valid Azure DevOps PAT or service principal"
		case http.StatusForbidden:
			return "Ensure the identity has 'Code (Read & Write)' permission on the repository"
		case http.StatusNotFound:
			return "Verify the organization, project and repository names"
		}
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return "Wait a few minutes before retrying"
	case statusCode >= http.StatusInternalServerError:
		return "The provider is experiencing issues; try again later"
	}
	return ""
}
