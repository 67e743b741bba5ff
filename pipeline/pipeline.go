// Package pipeline commits the files staged in a session workspace to a remote
// repository as a single commit, retrying when the branch moves underneath it.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"chat-tools-backend/internal/tracing"
	"chat-tools-backend/keyedlock"
	"chat-tools-backend/logging"
	"chat-tools-backend/metrics"
	"chat-tools-backend/pathutil"
	"chat-tools-backend/repo"
	"chat-tools-backend/retry"
	"chat-tools-backend/session"
	"chat-tools-backend/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffUnit = time.Second
	DefaultConcurrency = 8
)

// Event types published while a push runs.
const (
	EventStarted   = "push.started"
	EventRetrying  = "push.retrying"
	EventCompleted = "push.completed"
	EventFailed    = "push.failed"
)

// Notifier receives progress events. *websocket.SessionHub satisfies it.
type Notifier interface {
	Publish(sessionID, messageType string, payload map[string]any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, map[string]any) {}

// Config tunes retries and diff fan-out.
type Config struct {
	MaxRetries  int
	BackoffUnit time.Duration
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Request describes one push.
type Request struct {
	SessionID string
	Repo      types.RepoRef
	// Scope restricts the push to workspace files under this repository sub-directory.
	Scope string
	// Branch defaults to the repository's default branch.
	Branch  string
	Message string
}

// Pipeline pushes session workspaces.
type Pipeline struct {
	store    *session.Store
	opener   repo.Opener
	cfg      Config
	notifier Notifier
	log      *logrus.Entry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier publishes progress events to n.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// New returns a Pipeline. A zero Config uses the defaults, except MaxRetries which is
// taken as given.
func New(store *session.Store, opener repo.Opener, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		opener:   opener,
		cfg:      cfg.withDefaults(),
		notifier: nopNotifier{},
		log:      logging.NewLogger("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// staged is the diff outcome of one workspace file. change is nil when the file is not
// part of the changeset.
type staged struct {
	result types.FileResult
	change *types.Change
}

// Run diffs the session workspace against the branch and pushes the differences. Errors
// before the push (validation, opening the repository, reading the remote) return a nil
// result; once a push has been attempted the result is non-nil and err reports why it
// did not land.
func (p *Pipeline) Run(ctx context.Context, req Request) (*types.PushResult, error) {
	if req.SessionID == "" {
		return nil, &types.ValidationError{Field: "sessionId", Message: "is required"}
	}
	if err := req.Repo.Validate(); err != nil {
		return nil, err
	}

	sess, err := p.store.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, err
	}
	r, err := p.opener.Open(ctx, sess, req.Repo)
	if err != nil {
		return nil, err
	}

	branch := req.Branch
	if branch == "" {
		if branch, err = r.DefaultBranch(ctx); err != nil {
			return nil, fmt.Errorf("failed to resolve default branch: %w", err)
		}
	}

	release := p.store.Locks().Acquire(keyedlock.Key(req.SessionID, req.Repo.String(), branch))
	defer release()

	provider := string(req.Repo.Provider)
	ctx, span := tracing.StartSpan(ctx, "pipeline.Run",
		tracing.AttrSessionID.String(req.SessionID),
		tracing.AttrProvider.String(provider),
		tracing.AttrRepo.String(req.Repo.String()),
		tracing.AttrBranch.String(branch),
	)
	defer span.End()

	log := p.log.WithFields(logrus.Fields{"session": req.SessionID, "repo": req.Repo.String(), "branch": branch})
	p.notifier.Publish(req.SessionID, EventStarted, map[string]any{"repo": req.Repo.String(), "branch": branch})

	files, err := p.diff(ctx, req, r, branch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.PushRuns.WithLabelValues(provider, "failed").Inc()
		p.notifier.Publish(req.SessionID, EventFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	var changes []types.Change
	for _, f := range files {
		if f.change != nil {
			changes = append(changes, *f.change)
		}
	}
	span.SetAttributes(tracing.AttrChanges.Int(len(changes)))

	result := &types.PushResult{Branch: branch, Results: make([]types.FileResult, len(files))}
	for i, f := range files {
		result.Results[i] = f.result
	}

	if len(changes) == 0 {
		result.Success = true
		result.Message = "Nothing to commit"
		metrics.PushRuns.WithLabelValues(provider, "noop").Inc()
		p.notifier.Publish(req.SessionID, EventCompleted, map[string]any{"branch": branch, "changes": 0})
		log.Info("Nothing to commit")
		return result, nil
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Update files from chat session %s", req.SessionID)
	}

	tip, err := r.BranchTip(ctx, branch)
	if err != nil {
		err = fmt.Errorf("failed to read tip of %s: %w", branch, err)
		return p.fail(ctx, req, result, files, err)
	}

	var commitID string
	policy := retry.Policy{
		MaxAttempts: p.cfg.MaxRetries + 1,
		Retryable:   types.IsRetryable,
		Backoff:     retry.Linear(p.cfg.BackoffUnit),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Warn("Push rejected, retrying")
			p.notifier.Publish(req.SessionID, EventRetrying, map[string]any{"attempt": attempt, "error": err.Error()})
		},
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		ctx, attemptSpan := tracing.StartSpan(ctx, "pipeline.push", tracing.AttrAttempt.Int(attempt))
		defer attemptSpan.End()

		if attempt > 1 {
			fresh, err := r.BranchTip(ctx, branch)
			if err != nil {
				attemptSpan.RecordError(err)
				return err
			}
			tip = fresh
		}
		id, err := r.Push(ctx, types.PushInput{Branch: branch, ExpectedTip: tip, Message: message, Changes: changes})
		if err != nil {
			attemptSpan.RecordError(err)
			metrics.PushAttempts.WithLabelValues(provider, attemptOutcome(err)).Inc()
			return err
		}
		metrics.PushAttempts.WithLabelValues(provider, "success").Inc()
		commitID = id
		return nil
	})
	if err != nil {
		return p.fail(ctx, req, result, files, err)
	}

	for i, f := range files {
		if f.change == nil {
			continue
		}
		res := &result.Results[i]
		res.Success = true
		if f.change.Type == types.ChangeAdd {
			res.Message = "Successfully added"
		} else {
			res.Message = "Successfully updated"
		}
	}
	result.Success = true
	result.CommitID = commitID
	result.Message = fmt.Sprintf("Pushed %d file(s) to %s", len(changes), branch)

	metrics.PushRuns.WithLabelValues(provider, "committed").Inc()
	p.notifier.Publish(req.SessionID, EventCompleted, map[string]any{"branch": branch, "commit": commitID, "changes": len(changes)})
	log.WithFields(logrus.Fields{"commit": commitID, "changes": len(changes)}).Info("Pushed workspace")
	return result, nil
}

// fail marks every staged file as not committed and returns err alongside the result.
func (p *Pipeline) fail(ctx context.Context, req Request, result *types.PushResult, files []staged, err error) (*types.PushResult, error) {
	tracing.RecordError(ctx, err)
	for i, f := range files {
		if f.change != nil {
			result.Results[i].Success = false
			result.Results[i].Message = "Push failed: " + err.Error()
		}
	}
	result.Success = false
	result.Message = err.Error()

	outcome := "failed"
	if retry.IsExhausted(err) {
		outcome = "exhausted"
	}
	metrics.PushRuns.WithLabelValues(string(req.Repo.Provider), outcome).Inc()
	p.notifier.Publish(req.SessionID, EventFailed, map[string]any{"error": err.Error()})
	p.log.WithError(err).WithField("session", req.SessionID).Error("Push failed")
	return result, err
}

func attemptOutcome(err error) string {
	switch {
	case types.IsConflict(err):
		return "conflict"
	case types.IsRetryable(err):
		return "retryable"
	default:
		return "error"
	}
}

// diff computes one staged entry per workspace file, in enumeration order. Remote reads
// run concurrently, each goroutine writing only its own slot. Only a remote not-found is
// handled per file; any other read failure aborts the whole diff.
func (p *Pipeline) diff(ctx context.Context, req Request, r repo.Repository, branch string) ([]staged, error) {
	seq, err := p.store.Workspaces().Enumerate(req.SessionID)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rel, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate workspace: %w", err)
		}
		paths = append(paths, rel)
	}

	scope := pathutil.StripRepoPrefix(pathutil.NormalizeSlashes(req.Scope), req.Repo.Name)
	files := make([]staged, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, rel := range paths {
		files[i].result = types.FileResult{File: rel}

		dest := pathutil.StripRepoPrefix(pathutil.NormalizeSlashes(rel), req.Repo.Name)
		if !pathutil.WithinScope(dest, scope) {
			files[i].result.Skipped = true
			files[i].result.Success = true
			files[i].result.Message = fmt.Sprintf("Skipped: outside of scope '%s'", scope)
			continue
		}
		if dest == "" {
			files[i].result.Skipped = true
			files[i].result.Success = true
			files[i].result.Message = "Skipped: resolves to repository root"
			continue
		}
		remote := pathutil.RemotePath(dest)
		files[i].result.Path = remote

		g.Go(func() error {
			local, err := p.store.Workspaces().ReadFile(req.SessionID, rel)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", rel, err)
			}
			current, err := r.FileContent(gctx, remote, branch)
			switch {
			case errors.Is(err, types.ErrNotFound):
				files[i].change = &types.Change{Path: remote, Type: types.ChangeAdd, Content: local}
				files[i].result.Message = "Staged for add"
			case err != nil:
				return fmt.Errorf("failed to compare %s with remote: %w", remote, err)
			case bytes.Equal(current, local):
				files[i].result.Skipped = true
				files[i].result.Success = true
				files[i].result.Message = "Skipped: identical to remote"
			default:
				files[i].change = &types.Change{Path: remote, Type: types.ChangeEdit, Content: local}
				files[i].result.Message = "Staged for update"
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
