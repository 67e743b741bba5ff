package tool

import (
	"context"
	"encoding/json"
	"testing"

	"chat-tools-backend/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listArgs struct {
	Path      string `json:"path" jsonschema:"description=Directory inside the repository"`
	Ref       string `json:"ref,omitempty" jsonschema:"description=Branch or commit"`
	Recursive bool   `json:"recursive,omitempty"`
}

func newListTool() *Tool {
	return New("list_directory", "List a directory", func(_ context.Context, args listArgs) (any, error) {
		return map[string]any{"path": args.Path, "ref": args.Ref, "recursive": args.Recursive}, nil
	})
}

func TestNewReflectsSchema(t *testing.T) {
	tl := newListTool()

	assert.Equal(t, "list_directory", tl.Name)
	assert.Equal(t, []string{"path"}, tl.Required)
	require.Contains(t, tl.Properties, "path")
	require.Contains(t, tl.Properties, "recursive")

	path := tl.Properties["path"].(map[string]any)
	assert.Equal(t, "string", path["type"])
	assert.Equal(t, "Directory inside the repository", path["description"])
}

func TestCallDecodesArguments(t *testing.T) {
	out, err := newListTool().Call(context.Background(), json.RawMessage(`{"path":"docs","recursive":true}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "docs", "ref": "", "recursive": true}, out)
}

func TestCallRejectsMissingRequired(t *testing.T) {
	tests := map[string]string{
		"empty input": ``,
		"null":        `null`,
		"missing":     `{"ref":"main"}`,
		"null value":  `{"path":null}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newListTool().Call(context.Background(), json.RawMessage(input))
			require.Error(t, err)
			assert.True(t, types.IsValidation(err))
		})
	}
}

func TestCallRejectsNonObject(t *testing.T) {
	_, err := newListTool().Call(context.Background(), json.RawMessage(`["docs"]`))
	assert.True(t, types.IsValidation(err))
}

func TestSetKeepsRegistrationOrder(t *testing.T) {
	noop := func(context.Context, struct{}) (any, error) { return nil, nil }
	s := NewSet(New("b", "", noop), New("a", "", noop))
	s.Add(New("b", "replaced", noop))

	assert.Equal(t, []string{"b", "a"}, s.Names())
	assert.Equal(t, 2, s.Len())
	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Description)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	var nilSet *Set
	assert.Equal(t, 0, nilSet.Len())
}

func TestZeroArgumentTools(t *testing.T) {
	type noArgs struct{}
	tests := map[string]*Tool{
		"unnamed": New("ping", "", func(context.Context, struct{}) (any, error) { return "pong", nil }),
		"named":   New("ping", "", func(context.Context, noArgs) (any, error) { return "pong", nil }),
		"anonymous fields": New("echo", "", func(_ context.Context, a struct {
			Text string `json:"text"`
		}) (any, error) {
			return a.Text, nil
		}),
	}
	for name, tl := range tests {
		t.Run(name, func(t *testing.T) {
			assert.NotNil(t, tl.Properties)
			out, err := tl.Call(context.Background(), nil)
			if tl.Name == "echo" {
				assert.Equal(t, []string{"text"}, tl.Required)
				assert.Contains(t, tl.Properties, "text")
				assert.True(t, types.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Empty(t, tl.Properties)
			assert.Empty(t, tl.Required)
			assert.Equal(t, "pong", out)
		})
	}
}
