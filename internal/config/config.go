package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds application configuration
type AppConfig struct {
	Port      string          `yaml:"port"`
	LogLevel  string          `yaml:"logLevel"`
	LogJSON   bool            `yaml:"logJson"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Model     ModelConfig     `yaml:"model"`
	Push      PushConfig      `yaml:"push"`
	GitHub    GitHubConfig    `yaml:"github"`
	GitLab    GitLabConfig    `yaml:"gitlab"`
	Azure     AzureConfig     `yaml:"azureDevOps"`
	Jira      JiraConfig      `yaml:"jira"`
	Kube      KubeConfig      `yaml:"kubernetes"`
	Tracing   TracingConfig   `yaml:"tracing"`
	// RequestsPerSecond caps outbound calls per provider client.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

type WorkspaceConfig struct {
	BaseDir string `yaml:"baseDir"`
}

type ModelConfig struct {
	APIKey       string `yaml:"apiKey"`
	Name         string `yaml:"name"`
	MaxTokens    int64  `yaml:"maxTokens"`
	MaxToolCalls int    `yaml:"maxToolCalls"`
	System       string `yaml:"system"`
	// UseVertex routes calls through Vertex AI with Google application default credentials.
	UseVertex       bool   `yaml:"useVertex"`
	VertexRegion    string `yaml:"vertexRegion"`
	VertexProjectID string `yaml:"vertexProjectId"`
}

type PushConfig struct {
	MaxRetries      int           `yaml:"maxRetries"`
	BackoffUnit     time.Duration `yaml:"backoffUnit"`
	DiffConcurrency int           `yaml:"diffConcurrency"`
}

type GitHubConfig struct {
	Token          string `yaml:"token"`
	APIURL         string `yaml:"apiUrl"`
	AppID          string `yaml:"appId"`
	PrivateKey     string `yaml:"privateKey"`
	InstallationID int64  `yaml:"installationId"`
}

type GitLabConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"baseUrl"`
}

type AzureConfig struct {
	PAT          string `yaml:"pat"`
	BaseURL      string `yaml:"baseUrl"`
	TenantID     string `yaml:"tenantId"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

type JiraConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Email   string `yaml:"email"`
	Token   string `yaml:"token"`
}

type KubeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *AppConfig {
	return &AppConfig{
		Port:     "8080",
		LogLevel: "info",
		Workspace: WorkspaceConfig{
			BaseDir: filepath.Join(os.TempDir(), "chat-tools-workspaces"),
		},
		Model: ModelConfig{
			Name:         "claude-sonnet-4-20250514",
			MaxTokens:    4096,
			MaxToolCalls: 5,
		},
		Push: PushConfig{
			MaxRetries:      3,
			BackoffUnit:     time.Second,
			DiffConcurrency: 8,
		},
		GitHub:            GitHubConfig{APIURL: "https://api.github.com"},
		GitLab:            GitLabConfig{BaseURL: "https://gitlab.com"},
		Azure:             AzureConfig{BaseURL: "https://dev.azure.com"},
		Kube:              KubeConfig{Namespace: "default"},
		Tracing:           TracingConfig{ServiceName: "chat-tools-backend"},
		RequestsPerSecond: 10,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in the
// working directory is loaded first when present.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = getEnvBool("LOG_JSON", cfg.LogJSON)
	cfg.Workspace.BaseDir = getEnvOrDefault("WORKSPACE_BASE_DIR", cfg.Workspace.BaseDir)

	cfg.Model.APIKey = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.Model.APIKey)
	cfg.Model.Name = getEnvOrDefault("ANTHROPIC_MODEL", cfg.Model.Name)
	cfg.Model.MaxToolCalls = getEnvInt("MAX_TOOL_CALLS", cfg.Model.MaxToolCalls)
	cfg.Model.UseVertex = os.Getenv("CLAUDE_CODE_USE_VERTEX") == "1" || cfg.Model.UseVertex
	cfg.Model.VertexRegion = getEnvOrDefault("CLOUD_ML_REGION", cfg.Model.VertexRegion)
	cfg.Model.VertexProjectID = getEnvOrDefault("ANTHROPIC_VERTEX_PROJECT_ID", cfg.Model.VertexProjectID)

	cfg.Push.MaxRetries = getEnvInt("PUSH_MAX_RETRIES", cfg.Push.MaxRetries)
	cfg.Push.BackoffUnit = getEnvDuration("PUSH_BACKOFF_UNIT", cfg.Push.BackoffUnit)
	cfg.Push.DiffConcurrency = getEnvInt("PUSH_DIFF_CONCURRENCY", cfg.Push.DiffConcurrency)

	cfg.GitHub.Token = getEnvOrDefault("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.GitHub.APIURL = getEnvOrDefault("GITHUB_API_URL", cfg.GitHub.APIURL)
	cfg.GitHub.AppID = getEnvOrDefault("GITHUB_APP_ID", cfg.GitHub.AppID)
	cfg.GitHub.PrivateKey = getEnvOrDefault("GITHUB_PRIVATE_KEY", cfg.GitHub.PrivateKey)
	cfg.GitHub.InstallationID = int64(getEnvInt("GITHUB_INSTALLATION_ID", int(cfg.GitHub.InstallationID)))

	cfg.GitLab.Token = getEnvOrDefault("GITLAB_TOKEN", cfg.GitLab.Token)
	cfg.GitLab.BaseURL = getEnvOrDefault("GITLAB_BASE_URL", cfg.GitLab.BaseURL)

	cfg.Azure.PAT = getEnvOrDefault("AZURE_DEVOPS_PAT", cfg.Azure.PAT)
	cfg.Azure.BaseURL = getEnvOrDefault("AZURE_DEVOPS_BASE_URL", cfg.Azure.BaseURL)
	cfg.Azure.TenantID = getEnvOrDefault("AZURE_TENANT_ID", cfg.Azure.TenantID)
	cfg.Azure.ClientID = getEnvOrDefault("AZURE_CLIENT_ID", cfg.Azure.ClientID)
	cfg.Azure.ClientSecret = getEnvOrDefault("AZURE_CLIENT_SECRET", cfg.Azure.ClientSecret)

	cfg.Jira.BaseURL = getEnvOrDefault("JIRA_BASE_URL", cfg.Jira.BaseURL)
	cfg.Jira.Email = getEnvOrDefault("JIRA_EMAIL", cfg.Jira.Email)
	cfg.Jira.Token = getEnvOrDefault("JIRA_API_TOKEN", cfg.Jira.Token)

	cfg.Kube.Enabled = getEnvBool("KUBERNETES_TOOLS_ENABLED", cfg.Kube.Enabled)
	cfg.Kube.Kubeconfig = getEnvOrDefault("KUBECONFIG", cfg.Kube.Kubeconfig)
	cfg.Kube.Namespace = getEnvOrDefault("NAMESPACE", cfg.Kube.Namespace)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
}

// Validate rejects configurations the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.Workspace.BaseDir == "" {
		return errors.New("workspace.baseDir must not be empty")
	}
	if c.Model.MaxToolCalls < 1 {
		return fmt.Errorf("model.maxToolCalls must be at least 1, got %d", c.Model.MaxToolCalls)
	}
	if c.Push.MaxRetries < 0 {
		return fmt.Errorf("push.maxRetries must not be negative, got %d", c.Push.MaxRetries)
	}
	if c.Push.DiffConcurrency < 1 {
		return fmt.Errorf("push.diffConcurrency must be at least 1, got %d", c.Push.DiffConcurrency)
	}
	if c.Model.UseVertex && c.Model.VertexProjectID == "" {
		return errors.New("model.vertexProjectId is required when Vertex AI is enabled")
	}
	if (c.GitHub.AppID == "") != (c.GitHub.PrivateKey == "") {
		return errors.New("github.appId and github.privateKey must be set together")
	}
	return nil
}

// JiraEnabled reports whether Jira credentials are configured.
func (c *AppConfig) JiraEnabled() bool {
	return c.Jira.BaseURL != "" && c.Jira.Token != ""
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		return os.Getenv(envVarRegex.FindStringSubmatch(match)[1])
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
