// Package integrations builds the tool set offered to the model in each session.
package integrations

import (
	"context"

	"chat-tools-backend/auth"
	"chat-tools-backend/jira"
	"chat-tools-backend/k8s"
	"chat-tools-backend/logging"
	"chat-tools-backend/pipeline"
	"chat-tools-backend/registry"
	"chat-tools-backend/repo"
	"chat-tools-backend/session"
	"chat-tools-backend/tool"
	"chat-tools-backend/types"

	"github.com/sirupsen/logrus"
)

// Credentials resolves the token used for git transport. *repo.Factory implements it.
type Credentials interface {
	Token(ctx context.Context, sess *session.Session, provider types.ProviderType) (auth.Token, error)
}

// Deps are the integrations a Toolkit can expose. Nil fields switch the matching tools
// off.
type Deps struct {
	Store       *session.Store
	Opener      repo.Opener
	Credentials Credentials
	Pipeline    *pipeline.Pipeline
	Kube        *k8s.Client
	Jira        *jira.Client
	Registry    *registry.Client
}

// Toolkit registers tools for new sessions.
type Toolkit struct {
	deps    Deps
	fetcher *repo.Fetcher
	log     *logrus.Entry
}

func New(deps Deps) *Toolkit {
	return &Toolkit{
		deps:    deps,
		fetcher: repo.NewFetcher(deps.Store.Locks(), deps.Store.Workspaces()),
		log:     logging.NewLogger("integrations"),
	}
}

// For builds the tool set of sess. It has the session.Registrar signature.
func (k *Toolkit) For(sess *session.Session) *tool.Set {
	set := tool.NewSet()
	k.addWorkspaceTools(set, sess)
	if k.deps.Opener != nil {
		k.addRepositoryTools(set, sess)
	}
	if k.deps.Kube != nil {
		k.addKubernetesTools(set)
	}
	if k.deps.Jira != nil {
		k.addJiraTools(set)
	}
	if k.deps.Registry != nil {
		k.addRegistryTools(set)
	}
	k.log.WithFields(logrus.Fields{"session": sess.ID, "tools": set.Len()}).Debug("Registered session tools")
	return set
}
