package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.Model.MaxToolCalls)
	assert.Equal(t, 3, cfg.Push.MaxRetries)
	assert.Equal(t, time.Second, cfg.Push.BackoffUnit)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	content := `
port: "9090"
push:
  maxRetries: 5
  backoffUnit: 250ms
gitlab:
  baseUrl: https://gitlab.example.com
  token: ${TEST_GITLAB_TOKEN}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TEST_GITLAB_TOKEN", "glpat-from-env")
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port, "environment overrides the file")
	assert.Equal(t, 5, cfg.Push.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Push.BackoffUnit)
	assert.Equal(t, "https://gitlab.example.com", cfg.GitLab.BaseURL)
	assert.Equal(t, "glpat-from-env", cfg.GitLab.Token)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"defaults", func(*AppConfig) {}, false},
		{"zero tool calls", func(c *AppConfig) { c.Model.MaxToolCalls = 0 }, true},
		{"negative retries", func(c *AppConfig) { c.Push.MaxRetries = -1 }, true},
		{"app id without key", func(c *AppConfig) { c.GitHub.AppID = "123" }, true},
		{"empty workspace", func(c *AppConfig) { c.Workspace.BaseDir = "" }, true},
		{"vertex without project", func(c *AppConfig) { c.Model.UseVertex = true }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
