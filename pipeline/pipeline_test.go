package pipeline

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/repo"
	"chat-tools-backend/repo/repotest"
	"chat-tools-backend/retry"
	"chat-tools-backend/session"
	"chat-tools-backend/types"
	"chat-tools-backend/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpener struct{ r repo.Repository }

func (o fakeOpener) Open(context.Context, *session.Session, types.RepoRef) (repo.Repository, error) {
	return o.r, nil
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_, messageType string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, messageType)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var ref = types.RepoRef{Provider: types.ProviderGitHub, Owner: "octo", Name: "hello"}

type harness struct {
	store *session.Store
	fake  *repotest.Fake
	rec   *recorder
	p     *Pipeline
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	wm, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		store: session.NewStore(keyedlock.New(), wm),
		fake:  repotest.New(ref),
		rec:   &recorder{},
	}
	if cfg.BackoffUnit == 0 {
		cfg.BackoffUnit = time.Millisecond
	}
	h.p = New(h.store, fakeOpener{h.fake}, cfg, WithNotifier(h.rec))
	return h
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	_, err := h.store.Workspaces().WriteFile("s1", rel, []byte(content))
	require.NoError(t, err)
}

func TestPushNewReadme(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3})
	h.write(t, "README.md", "Hello")

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "main", res.Branch)
	assert.Equal(t, []types.FileResult{{File: "README.md", Success: true, Message: "Successfully added", Path: "/README.md"}}, res.Results)

	require.Len(t, h.fake.Pushes, 1)
	push := h.fake.Pushes[0]
	assert.Equal(t, "c0", push.ExpectedTip)
	require.Len(t, push.Changes, 1)
	assert.Equal(t, types.ChangeAdd, push.Changes[0].Type)
	assert.Equal(t, "/README.md", push.Changes[0].Path)

	got, ok := h.fake.File("main", "README.md")
	require.True(t, ok)
	assert.Equal(t, "Hello", string(got))
	assert.Equal(t, []string{EventStarted, EventCompleted}, h.rec.kinds())
}

func TestRepeatedPushIsNoop(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3})
	h.write(t, "README.md", "Hello")

	_, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.NoError(t, err)

	for range 2 {
		res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "Nothing to commit", res.Message)
		require.Len(t, res.Results, 1)
		assert.True(t, res.Results[0].Skipped)
		assert.Equal(t, "Skipped: identical to remote", res.Results[0].Message)
	}
	assert.Equal(t, 1, h.fake.PushCount())
}

func TestUpdateExistingFile(t *testing.T) {
	h := newHarness(t, Config{})
	h.fake.SetFile("main", "docs/guide.md", []byte("old"))
	h.write(t, "docs/guide.md", "new")

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref, Message: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully updated", res.Results[0].Message)
	assert.Equal(t, "/docs/guide.md", res.Results[0].Path)
	assert.Equal(t, types.ChangeEdit, h.fake.Pushes[0].Changes[0].Type)
	assert.Equal(t, "docs", h.fake.Pushes[0].Message)
}

func TestScopeFiltering(t *testing.T) {
	h := newHarness(t, Config{})
	h.write(t, "a/b.txt", "b")
	h.write(t, "c/d.txt", "d")

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref, Scope: "a"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	byFile := map[string]types.FileResult{}
	for _, r := range res.Results {
		byFile[r.File] = r
	}
	assert.Equal(t, "Successfully added", byFile["a/b.txt"].Message)
	assert.True(t, byFile["c/d.txt"].Skipped)
	assert.Contains(t, byFile["c/d.txt"].Message, "outside of scope")

	require.Len(t, h.fake.Pushes[0].Changes, 1)
	assert.Equal(t, "/a/b.txt", h.fake.Pushes[0].Changes[0].Path)
}

func TestRepoNamePrefixIsStripped(t *testing.T) {
	h := newHarness(t, Config{})
	h.write(t, "hello/src/main.go", "package main")

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.NoError(t, err)
	assert.Equal(t, "/src/main.go", res.Results[0].Path)
	assert.Equal(t, "/src/main.go", h.fake.Pushes[0].Changes[0].Path)
}

func TestRootDestinationSkipped(t *testing.T) {
	h := newHarness(t, Config{})
	h.write(t, "hello", "root")

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.NoError(t, err)
	assert.True(t, res.Results[0].Skipped)
	assert.Equal(t, "Skipped: resolves to repository root", res.Results[0].Message)
	assert.Zero(t, h.fake.PushCount())
}

func TestConflictRetriesWithRefreshedTip(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3})
	h.write(t, "README.md", "Hello")
	h.fake.PushHook = func(attempt int, in types.PushInput) error {
		if attempt == 1 {
			h.fake.MoveTip("main", "c-other")
		}
		return nil
	}

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, h.fake.Pushes, 2)
	assert.Equal(t, "c0", h.fake.Pushes[0].ExpectedTip)
	assert.Equal(t, "c-other", h.fake.Pushes[1].ExpectedTip)
	assert.Contains(t, h.rec.kinds(), EventRetrying)
}

func TestRetryBudgetExhausted(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2})
	h.write(t, "README.md", "Hello")
	h.fake.PushHook = func(int, types.PushInput) error {
		return &types.APIError{Provider: "fake", StatusCode: http.StatusConflict, Message: "moved", Conflict: true}
	}

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.Error(t, err)
	assert.True(t, retry.IsExhausted(err))
	assert.True(t, types.IsConflict(err))
	assert.Equal(t, 3, h.fake.PushCount())

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.False(t, res.Results[0].Success)
	assert.Contains(t, res.Results[0].Message, "Push failed")
}

func TestNonRetryableAborts(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 5})
	h.write(t, "README.md", "Hello")
	h.fake.PushHook = func(int, types.PushInput) error {
		return &types.APIError{Provider: "fake", StatusCode: http.StatusForbidden, Message: "forbidden"}
	}

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.Error(t, err)
	assert.False(t, retry.IsExhausted(err))
	assert.Equal(t, 1, h.fake.PushCount())
	assert.False(t, res.Success)
	assert.Contains(t, h.rec.kinds(), EventFailed)
}

func TestServerErrorRetried(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2})
	h.write(t, "README.md", "Hello")
	h.fake.PushHook = func(attempt int, _ types.PushInput) error {
		if attempt == 1 {
			return &types.APIError{Provider: "fake", StatusCode: http.StatusBadGateway, Message: "bad gateway"}
		}
		return nil
	}

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, h.fake.PushCount())
}

func TestRemoteReadFailureAbortsRun(t *testing.T) {
	h := newHarness(t, Config{})
	h.write(t, "README.md", "Hello")
	h.write(t, "docs/a.md", "a")
	h.fake.FileContentHook = func(p, _ string) ([]byte, error) {
		if p == "README.md" {
			return nil, &types.APIError{Provider: "fake", StatusCode: http.StatusUnauthorized, Message: "Bad credentials"}
		}
		return nil, &types.APIError{Provider: "fake", StatusCode: http.StatusNotFound, Message: "not found"}
	}

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "Bad credentials")

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Zero(t, h.fake.PushCount())
	assert.Equal(t, []string{EventStarted, EventFailed}, h.rec.kinds())
}

func TestMissingBranchFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.write(t, "a.txt", "a")

	res, err := h.p.Run(t.Context(), Request{SessionID: "s1", Repo: ref, Branch: "feature"})
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.False(t, res.Success)
	assert.Zero(t, h.fake.PushCount())
}

func TestValidation(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.p.Run(t.Context(), Request{Repo: ref})
	assert.True(t, types.IsValidation(err))

	_, err = h.p.Run(t.Context(), Request{SessionID: "s1", Repo: types.RepoRef{Provider: types.ProviderGitHub}})
	assert.True(t, types.IsValidation(err))
}

func TestSameBranchRunsAreSerialized(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3})
	h.write(t, "README.md", "Hello")
	h.fake.PushHook = func(int, types.PushInput) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	results := make([]*types.PushResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.p.Run(context.Background(), Request{SessionID: "s1", Repo: ref})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	// The second run diffs after the first has landed, so it has nothing left to push.
	assert.Equal(t, 1, h.fake.PushCount())
	messages := []string{results[0].Message, results[1].Message}
	assert.Contains(t, messages, "Nothing to commit")
}
