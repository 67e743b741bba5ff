// Package repotest provides an in-memory Repository for tests.
package repotest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"chat-tools-backend/types"
)

// Fake is an in-memory repository with one file map per branch. Push applies changes
// only when ExpectedTip matches the branch tip, mimicking optimistic concurrency.
type Fake struct {
	RepoRef types.RepoRef

	mu            sync.Mutex
	defaultBranch string
	files         map[string]map[string][]byte // branch -> path (no leading /) -> content
	tips          map[string]string
	commitSeq     int

	// PushHook, when set, runs before each push is applied. A non-nil error fails the
	// push with that error.
	PushHook func(attempt int, in types.PushInput) error
	// FileContentHook, when set, replaces FileContent.
	FileContentHook func(path, ref string) ([]byte, error)

	Pushes     []types.PushInput
	FetchCount map[string]int
	Branches   []string
}

// New returns a Fake with an empty default branch "main" at tip "c0".
func New(ref types.RepoRef) *Fake {
	return &Fake{
		RepoRef:       ref,
		defaultBranch: "main",
		files:         map[string]map[string][]byte{"main": {}},
		tips:          map[string]string{"main": "c0"},
		FetchCount:    map[string]int{},
	}
}

// SetFile stores content at p on branch without moving the tip.
func (f *Fake) SetFile(branch, p string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[branch] == nil {
		f.files[branch] = map[string][]byte{}
		f.tips[branch] = "c0"
	}
	f.files[branch][strings.TrimPrefix(p, "/")] = content
}

// File returns the content at p on branch.
func (f *Fake) File(branch, p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[branch][strings.TrimPrefix(p, "/")]
	return b, ok
}

// MoveTip simulates a concurrent push by another client.
func (f *Fake) MoveTip(branch, tip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tips[branch] = tip
}

func (f *Fake) Ref() types.RepoRef { return f.RepoRef }

func notFound(what string) error {
	return &types.APIError{Provider: "fake", StatusCode: http.StatusNotFound, Message: what + " not found"}
}

func (f *Fake) branchOrDefault(ref string) string {
	if ref == "" {
		return f.defaultBranch
	}
	return ref
}

func (f *Fake) ListBranches(context.Context) ([]types.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Branch
	for name, tip := range f.tips {
		out = append(out, types.Branch{Name: name, Default: name == f.defaultBranch, Commit: types.CommitInfo{SHA: tip}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) ListDirectory(_ context.Context, p, ref string, recursive bool) (types.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.files[f.branchOrDefault(ref)]
	if !ok {
		return types.Listing{}, notFound("ref")
	}
	dir := strings.Trim(p, "/")
	if content, ok := files[dir]; ok && dir != "" {
		return types.FileListing(types.TreeEntry{Name: dir[strings.LastIndex(dir, "/")+1:], Path: dir, Type: types.EntryBlob, Size: int64(len(content))}), nil
	}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := map[string]bool{}
	var entries []types.TreeEntry
	for name := range files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if !recursive {
			if i := strings.Index(rest, "/"); i >= 0 {
				sub := prefix + rest[:i]
				if !seen[sub] {
					seen[sub] = true
					entries = append(entries, types.TreeEntry{Name: rest[:i], Path: sub, Type: types.EntryTree})
				}
				continue
			}
		}
		entries = append(entries, types.TreeEntry{Name: rest[strings.LastIndex(rest, "/")+1:], Path: name, Type: types.EntryBlob})
	}
	if len(entries) == 0 && dir != "" {
		return types.Listing{}, notFound(dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return types.DirectoryListing(dir, entries), nil
}

func (f *Fake) ListCommits(_ context.Context, ref, _ string, _ int) ([]types.CommitInfo, error) {
	tip, err := f.BranchTip(context.Background(), f.branchOrDefault(ref))
	if err != nil {
		return nil, err
	}
	return []types.CommitInfo{{SHA: tip, Message: "tip"}}, nil
}

func (f *Fake) DefaultBranch(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defaultBranch, nil
}

func (f *Fake) Exists(ctx context.Context, p, ref string) (bool, error) {
	if strings.Trim(p, "/") == "" {
		return true, nil
	}
	_, err := f.ListDirectory(ctx, p, ref, false)
	if types.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (f *Fake) BranchTip(_ context.Context, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tip, ok := f.tips[branch]
	if !ok {
		return "", notFound("branch " + branch)
	}
	return tip, nil
}

func (f *Fake) FileContent(_ context.Context, p, ref string) ([]byte, error) {
	p = strings.Trim(p, "/")
	f.mu.Lock()
	f.FetchCount[p]++
	hook := f.FileContentHook
	f.mu.Unlock()
	if hook != nil {
		return hook(p, ref)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[f.branchOrDefault(ref)][p]
	if !ok {
		return nil, notFound(p)
	}
	return append([]byte(nil), content...), nil
}

func (f *Fake) ListCIRuns(context.Context, string, int) ([]types.CIRun, error) {
	return []types.CIRun{{ID: "1", Status: "completed", Conclusion: "success"}}, nil
}

func (f *Fake) CreateBranch(_ context.Context, name, from string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tips[name]; ok {
		return false, nil
	}
	src := f.branchOrDefault(from)
	files := map[string][]byte{}
	for k, v := range f.files[src] {
		files[k] = v
	}
	f.files[name] = files
	f.tips[name] = f.tips[src]
	f.Branches = append(f.Branches, name)
	return true, nil
}

func (f *Fake) CreatePullRequest(_ context.Context, in types.PullRequestInput) (*types.PullRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &types.PullRequest{Number: 1, URL: "https://example.test/pr/1", State: "open"}, nil
}

func (f *Fake) SetDefaultBranch(_ context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tips[branch]; !ok {
		return notFound("branch " + branch)
	}
	f.defaultBranch = branch
	return nil
}

// Push records in and, unless PushHook fails it, applies the changes as a new commit.
func (f *Fake) Push(_ context.Context, in types.PushInput) (string, error) {
	f.mu.Lock()
	f.Pushes = append(f.Pushes, in)
	attempt := len(f.Pushes)
	hook := f.PushHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(attempt, in); err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if tip := f.tips[in.Branch]; tip != in.ExpectedTip {
		return "", &types.APIError{Provider: "fake", StatusCode: http.StatusConflict, Message: fmt.Sprintf("expected %s, branch at %s", in.ExpectedTip, tip), Conflict: true}
	}
	if f.files[in.Branch] == nil {
		f.files[in.Branch] = map[string][]byte{}
	}
	for _, ch := range in.Changes {
		f.files[in.Branch][strings.TrimPrefix(ch.Path, "/")] = ch.Content
	}
	f.commitSeq++
	id := fmt.Sprintf("c%d", f.commitSeq)
	f.tips[in.Branch] = id
	return id, nil
}

// PushCount returns how many pushes were attempted.
func (f *Fake) PushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pushes)
}
