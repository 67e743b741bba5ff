package gitlab

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chat-tools-backend/auth"
	"chat-tools-backend/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routes keys handlers by "METHOD escaped-path" so encoded project ids stay intact.
type routes map[string]http.HandlerFunc

func newTestClient(t *testing.T, r routes) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := req.Method + " " + strings.TrimPrefix(req.URL.EscapedPath(), "/api/v4")
		h, ok := r[key]
		if !ok {
			t.Logf("unrouted request %s", key)
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Not Found"})
			return
		}
		h(w, req)
	}))
	t.Cleanup(srv.Close)
	ref := types.RepoRef{Provider: types.ProviderGitLab, Owner: "group/sub", Name: "proj"}
	return NewClient(ref, srv.URL+"/api/v4", auth.Token{Value: "glpat-test"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const projectPath = "/projects/group%2Fsub%2Fproj"

func TestListBranchesFollowsNextPage(t *testing.T) {
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/branches": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer glpat-test", r.Header.Get("Authorization"))
			if r.URL.Query().Get("page") == "1" {
				w.Header().Set("X-Next-Page", "2")
				writeJSON(w, 200, []map[string]any{{"name": "main", "default": true, "commit": map[string]string{"id": "a1"}}})
				return
			}
			writeJSON(w, 200, []map[string]any{{"name": "dev", "protected": true}})
		},
	})

	branches, err := c.ListBranches(t.Context())
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.True(t, branches[0].Default)
	assert.Equal(t, "a1", branches[0].Commit.SHA)
	assert.True(t, branches[1].Protected)
}

func TestListDirectoryFileVariant(t *testing.T) {
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/tree": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("path") == "docs" {
				writeJSON(w, 200, []map[string]any{{"id": "t1", "name": "a.md", "type": "blob", "path": "docs/a.md", "mode": "100644"}})
				return
			}
			writeJSON(w, 200, []map[string]any{})
		},
		"GET " + projectPath + "/repository/files/docs%2Fa.md": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			writeJSON(w, 200, map[string]any{"file_name": "a.md", "file_path": "docs/a.md", "size": 12, "blob_id": "b1"})
		},
	})

	dir, err := c.ListDirectory(t.Context(), "docs", "main", false)
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory())
	require.Len(t, dir.Entries, 1)
	assert.Equal(t, "t1", dir.Entries[0].SHA)

	file, err := c.ListDirectory(t.Context(), "docs/a.md", "main", false)
	require.NoError(t, err)
	assert.False(t, file.IsDirectory())
	assert.EqualValues(t, 12, file.File.Size)
}

func TestMissingPathIsNotFound(t *testing.T) {
	c := newTestClient(t, routes{})

	_, err := c.ListDirectory(t.Context(), "nope", "main", false)
	assert.True(t, types.IsNotFound(err))

	ok, err := c.Exists(t.Context(), "nope", "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPushSendsActions(t *testing.T) {
	var body struct {
		Branch  string         `json:"branch"`
		Message string         `json:"commit_message"`
		Actions []commitAction `json:"actions"`
	}
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/branches/main": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, map[string]any{"name": "main", "commit": map[string]string{"id": "tip1"}})
		},
		"POST " + projectPath + "/repository/commits": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeJSON(w, 201, map[string]string{"id": "new1"})
		},
	})

	id, err := c.Push(t.Context(), types.PushInput{
		Branch:      "main",
		ExpectedTip: "tip1",
		Message:     "msg",
		Changes: []types.Change{
			{Path: "/new.txt", Type: types.ChangeAdd, Content: []byte("n")},
			{Path: "/old.txt", Type: types.ChangeEdit, Content: []byte("o")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", id)
	require.Len(t, body.Actions, 2)
	assert.Equal(t, "create", body.Actions[0].Action)
	assert.Equal(t, "new.txt", body.Actions[0].FilePath)
	assert.Empty(t, body.Actions[0].LastCommitID)
	assert.Equal(t, "update", body.Actions[1].Action)
	assert.Equal(t, "tip1", body.Actions[1].LastCommitID)
	assert.Equal(t, "base64", body.Actions[1].Encoding)
}

func TestPushConflicts(t *testing.T) {
	t.Run("tip moved", func(t *testing.T) {
		c := newTestClient(t, routes{
			"GET " + projectPath + "/repository/branches/main": func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, map[string]any{"commit": map[string]string{"id": "tip2"}})
			},
		})
		_, err := c.Push(t.Context(), types.PushInput{Branch: "main", ExpectedTip: "tip1", Changes: []types.Change{{Path: "/a"}}})
		assert.True(t, types.IsConflict(err))
	})

	t.Run("file changed since", func(t *testing.T) {
		c := newTestClient(t, routes{
			"GET " + projectPath + "/repository/branches/main": func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, map[string]any{"commit": map[string]string{"id": "tip1"}})
			},
			"POST " + projectPath + "/repository/commits": func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 400, map[string]string{"message": "You are attempting to update a file that has changed since you started editing it."})
			},
		})
		_, err := c.Push(t.Context(), types.PushInput{Branch: "main", ExpectedTip: "tip1", Changes: []types.Change{{Path: "/a", Type: types.ChangeEdit}}})
		assert.True(t, types.IsConflict(err))
	})
}

func TestCreateMergeRequest(t *testing.T) {
	c := newTestClient(t, routes{
		"POST " + projectPath + "/merge_requests": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "feature", body["source_branch"])
			writeJSON(w, 201, map[string]any{"iid": 3, "web_url": "https://gitlab.com/group/sub/proj/-/merge_requests/3", "state": "opened"})
		},
	})

	mr, err := c.CreatePullRequest(t.Context(), types.PullRequestInput{Source: "feature", Target: "main", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 3, mr.Number)
	assert.Equal(t, "opened", mr.State)
}

func TestCreateBranchUsesDefault(t *testing.T) {
	var gotRef string
	c := newTestClient(t, routes{
		"GET " + projectPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, map[string]any{"default_branch": "trunk"})
		},
		"POST " + projectPath + "/repository/branches": func(w http.ResponseWriter, r *http.Request) {
			gotRef = r.URL.Query().Get("ref")
			writeJSON(w, 201, map[string]any{"name": r.URL.Query().Get("branch")})
		},
	})

	created, err := c.CreateBranch(t.Context(), "feature", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "trunk", gotRef)
}

func TestParseGitLabURL(t *testing.T) {
	tests := []struct {
		in        string
		wantOwner string
		wantName  string
		wantHost  string
		wantErr   bool
	}{
		{in: "https://gitlab.com/group/proj.git", wantOwner: "group", wantName: "proj"},
		{in: "git@gitlab.example.com:a/b/c.git", wantOwner: "a/b", wantName: "c", wantHost: "gitlab.example.com"},
		{in: "http://gitlab.com/group/proj/-/tree/main", wantOwner: "group", wantName: "proj"},
		{in: "gitlab.com/solo", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseGitLabURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, ref.Owner)
			assert.Equal(t, tt.wantName, ref.Name)
			assert.Equal(t, tt.wantHost, ref.Host)
		})
	}
}

func TestIsGitLabSelfHosted(t *testing.T) {
	assert.False(t, IsGitLabSelfHosted("gitlab.com"))
	assert.True(t, IsGitLabSelfHosted("gitlab.corp.example.com"))
	assert.False(t, IsGitLabSelfHosted("github.com"))
}
