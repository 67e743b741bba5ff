package integrations

import (
	"context"
	"fmt"
	"unicode/utf8"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/session"
	"chat-tools-backend/tool"
	"chat-tools-backend/types"
)

// maxReadBytes caps what read_workspace_file hands back to the model.
const maxReadBytes = 64 << 10

type emptyArgs struct{}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=Workspace-relative file path"`
	Content string `json:"content" jsonschema:"description=Full new file content"`
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"description=Workspace-relative file path"`
}

func (k *Toolkit) addWorkspaceTools(set *tool.Set, sess *session.Session) {
	ws := k.deps.Store.Workspaces()

	set.Add(tool.New("list_workspace", "List the files in the session workspace.",
		func(ctx context.Context, _ emptyArgs) (any, error) {
			seq, err := ws.Enumerate(sess.ID)
			if err != nil {
				return nil, err
			}
			files := []string{}
			for p, err := range seq {
				if err != nil {
					return nil, err
				}
				files = append(files, p)
			}
			return map[string]any{"files": files, "count": len(files)}, nil
		}))

	set.Add(tool.New("write_workspace_file", "Create or overwrite a file in the session workspace.",
		func(ctx context.Context, a writeFileArgs) (any, error) {
			if a.Path == "" {
				return nil, &types.ValidationError{Field: "path", Message: "is required"}
			}
			release := k.deps.Store.Locks().Acquire(keyedlock.Key(sess.ID, "file", a.Path))
			defer release()
			if _, err := ws.WriteFile(sess.ID, a.Path, []byte(a.Content)); err != nil {
				return nil, err
			}
			return map[string]any{"path": a.Path, "bytes": len(a.Content)}, nil
		}))

	set.Add(tool.New("read_workspace_file", "Read a text file from the session workspace.",
		func(ctx context.Context, a readFileArgs) (any, error) {
			if a.Path == "" {
				return nil, &types.ValidationError{Field: "path", Message: "is required"}
			}
			data, err := ws.ReadFile(sess.ID, a.Path)
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(data) {
				return nil, &types.ValidationError{Field: "path", Message: fmt.Sprintf("%s is not a text file", a.Path)}
			}
			truncated := len(data) > maxReadBytes
			if truncated {
				data = data[:maxReadBytes]
			}
			return map[string]any{"path": a.Path, "content": string(data), "truncated": truncated}, nil
		}))
}
