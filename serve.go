package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chat-tools-backend/auth"
	"chat-tools-backend/chat"
	"chat-tools-backend/github"
	"chat-tools-backend/handlers"
	"chat-tools-backend/integrations"
	"chat-tools-backend/internal/config"
	"chat-tools-backend/internal/tracing"
	"chat-tools-backend/jira"
	"chat-tools-backend/k8s"
	"chat-tools-backend/keyedlock"
	"chat-tools-backend/logging"
	"chat-tools-backend/pipeline"
	"chat-tools-backend/registry"
	"chat-tools-backend/repo"
	"chat-tools-backend/restclient"
	"chat-tools-backend/server"
	"chat-tools-backend/session"
	"chat-tools-backend/types"
	"chat-tools-backend/websocket"
	"chat-tools-backend/workspace"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath, port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config and PORT)")
	return cmd
}

// app is the wired object graph behind the HTTP server.
type app struct {
	store  *session.Store
	hub    *websocket.SessionHub
	router *gin.Engine
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logging.SetJSON(cfg.LogJSON)
	gin.SetMode(gin.ReleaseMode)

	if cfg.Tracing.Enabled {
		tp, err := tracing.Setup(cfg.Tracing.ServiceName, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("Failed to flush traces")
			}
		}()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	go a.hub.Run(ctx)

	log.WithField("workspaceDir", cfg.Workspace.BaseDir).Info("Starting chat tools backend")
	return server.Run(ctx, cfg.Port, a.router)
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	wm, err := workspace.NewManager(cfg.Workspace.BaseDir)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(keyedlock.New(), wm)
	hub := websocket.NewHub()

	factoryOpts, err := providerOptions(cfg)
	if err != nil {
		return nil, err
	}
	factory := repo.NewFactory(factoryOpts...)

	pipe := pipeline.New(store, factory, pipeline.Config{
		MaxRetries:  cfg.Push.MaxRetries,
		BackoffUnit: cfg.Push.BackoffUnit,
		Concurrency: cfg.Push.DiffConcurrency,
	}, pipeline.WithNotifier(hub))

	deps := integrations.Deps{
		Store:       store,
		Opener:      factory,
		Credentials: factory,
		Pipeline:    pipe,
		Registry:    registry.New(registry.Endpoints{}),
	}
	if cfg.JiraEnabled() {
		deps.Jira = jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.Token)
	}
	if cfg.Kube.Enabled {
		cs, err := k8s.NewClientset(cfg.Kube.Kubeconfig)
		if err != nil {
			return nil, err
		}
		deps.Kube = k8s.NewClient(cs, cfg.Kube.Namespace)
	}
	store.SetRegistrar(integrations.New(deps).For)

	model, err := chat.NewAnthropicModel(ctx, chat.ModelOptions{
		APIKey:          cfg.Model.APIKey,
		Name:            cfg.Model.Name,
		MaxTokens:       cfg.Model.MaxTokens,
		System:          cfg.Model.System,
		UseVertex:       cfg.Model.UseVertex,
		VertexRegion:    cfg.Model.VertexRegion,
		VertexProjectID: cfg.Model.VertexProjectID,
	})
	if err != nil {
		return nil, err
	}
	dispatcher := chat.NewDispatcher(store, model,
		chat.WithMaxToolRounds(cfg.Model.MaxToolCalls),
		chat.WithNotifier(hub),
	)

	h := &handlers.Handlers{Store: store, Chat: dispatcher, Pipeline: pipe, Events: hub}
	return &app{store: store, hub: hub, router: server.NewRouter(h, hub)}, nil
}

// providerOptions configures credentials and API roots for each hosting provider.
func providerOptions(cfg *config.AppConfig) ([]repo.FactoryOption, error) {
	opts := []repo.FactoryOption{
		repo.WithClientOptions(restclient.WithRateLimit(cfg.RequestsPerSecond, 5)),
		repo.WithBaseURL(types.ProviderGitHub, cfg.GitHub.APIURL),
		repo.WithBaseURL(types.ProviderGitLab, cfg.GitLab.BaseURL),
		repo.WithBaseURL(types.ProviderAzureDevOps, cfg.Azure.BaseURL),
	}

	switch {
	case cfg.GitHub.AppID != "":
		tm, err := github.NewTokenManager(cfg.GitHub.AppID, cfg.GitHub.PrivateKey, cfg.GitHub.APIURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure GitHub App: %w", err)
		}
		opts = append(opts, repo.WithSource(types.ProviderGitHub, tm.Source(cfg.GitHub.InstallationID)))
	case cfg.GitHub.Token != "":
		opts = append(opts, repo.WithSource(types.ProviderGitHub, auth.Static(cfg.GitHub.Token, auth.SchemeBearer)))
	}

	if cfg.GitLab.Token != "" {
		opts = append(opts, repo.WithSource(types.ProviderGitLab, auth.Static(cfg.GitLab.Token, auth.SchemeBearer)))
	}

	switch {
	case cfg.Azure.PAT != "":
		opts = append(opts, repo.WithSource(types.ProviderAzureDevOps, auth.Static(cfg.Azure.PAT, auth.SchemeBasicPAT)))
	case cfg.Azure.ClientID != "":
		opts = append(opts, repo.WithSource(types.ProviderAzureDevOps,
			auth.ClientCredentials(cfg.Azure.TenantID, cfg.Azure.ClientID, cfg.Azure.ClientSecret)))
	}
	return opts, nil
}
