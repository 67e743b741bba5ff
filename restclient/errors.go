package restclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"chat-tools-backend/types"
)

const maxRawError = 2048

// MapError turns a non-2xx response into an APIError. Providers disagree on error body
// shapes ({"message": "..."}, {"message": {"field": ["..."]}}, {"error": "..."},
// {"errorMessages": [...]}) so the message is pulled out of whichever is present.
func MapError(provider types.ProviderType, status int, body []byte) *types.APIError {
	apiErr := &types.APIError{
		Provider:    provider,
		StatusCode:  status,
		Message:     extractMessage(body),
		Remediation: types.ProviderGuidance(provider, status),
		RawError:    truncate(string(body), maxRawError),
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if status == http.StatusTooManyRequests {
		apiErr.RateLimited = true
	}
	return apiErr
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return truncate(strings.TrimSpace(string(body)), 200)
	}
	for _, key := range []string{"message", "error_description", "error", "errorMessages", "errors"} {
		if raw, ok := doc[key]; ok {
			if msg := flatten(raw); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// flatten renders a string, array or object of messages as one line.
func flatten(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if p := flatten(item); p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, "; ")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if m, ok := obj["message"]; ok {
			return flatten(m)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if p := flatten(obj[k]); p != "" {
				parts = append(parts, fmt.Sprintf("%s %s", k, p))
			}
		}
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
