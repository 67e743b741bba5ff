package registry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-tools-backend/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/npm/@scope%2Fwidget":
			_, _ = w.Write([]byte(`{"name":"@scope/widget","dist-tags":{"latest":"2.1.0"},
				"versions":{"2.1.0":{"description":"Widgets","license":"MIT"}},
				"time":{"2.1.0":"2026-03-01T00:00:00Z"}}`))
		case "/pypi/requests/json":
			_, _ = w.Write([]byte(`{"info":{"name":"requests","version":"2.32.3","summary":"HTTP for Humans.","license":"Apache-2.0"},
				"urls":[{"upload_time_iso_8601":"2024-05-29T15:37:47Z"}]}`))
		case "/go/github.com/!burnt!sushi/toml/@latest":
			_, _ = w.Write([]byte(`{"Version":"v1.4.0","Time":"2024-06-01T00:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Endpoints{NPM: srv.URL + "/npm", PyPI: srv.URL + "/pypi", GoProxy: srv.URL + "/go"})

	tests := []struct {
		eco     Ecosystem
		name    string
		version string
		license string
	}{
		{NPM, "@scope/widget", "2.1.0", "MIT"},
		{PyPI, "requests", "2.32.3", "Apache-2.0"},
		{"GO", "github.com/BurntSushi/toml", "v1.4.0", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.eco), func(t *testing.T) {
			pkg, err := c.Lookup(t.Context(), tt.eco, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.version, pkg.Version)
			assert.Equal(t, tt.license, pkg.License)
			assert.NotEmpty(t, pkg.Published)
		})
	}
}

func TestLookupErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := New(Endpoints{NPM: srv.URL, PyPI: srv.URL, GoProxy: srv.URL})

	_, err := c.Lookup(t.Context(), NPM, "left-pad-missing")
	assert.True(t, types.IsNotFound(err))

	_, err = c.Lookup(t.Context(), "cargo", "serde")
	assert.True(t, types.IsValidation(err))

	_, err = c.Lookup(t.Context(), PyPI, "")
	assert.True(t, types.IsValidation(err))
}
