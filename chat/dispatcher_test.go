package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/session"
	"chat-tools-backend/tool"
	"chat-tools-backend/types"
	"chat-tools-backend/workspace"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"description=Text to echo"`
}

type failArgs struct{}

func testTools() *tool.Set {
	return tool.NewSet(
		tool.New("echo", "Echo the text back", func(_ context.Context, a echoArgs) (any, error) {
			return map[string]string{"echo": a.Text}, nil
		}),
		tool.New("fail", "Always fails", func(context.Context, failArgs) (any, error) {
			return nil, &types.APIError{Provider: types.ProviderGitHub, StatusCode: http.StatusForbidden, Message: "forbidden"}
		}),
	)
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	wm, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	return session.NewStore(keyedlock.New(), wm, session.WithRegistrar(func(*session.Session) *tool.Set {
		return testTools()
	}))
}

func toolCall(id, name, input string) *Turn {
	return &Turn{ToolCalls: []ToolCall{{ID: id, Name: name, Input: json.RawMessage(input)}}}
}

// lastToolResult returns the first tool result block of the final message in history.
func lastToolResult(t *testing.T, history []anthropic.MessageParam) *anthropic.ToolResultBlockParam {
	t.Helper()
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	require.Equal(t, anthropic.MessageParamRoleUser, last.Role)
	require.NotEmpty(t, last.Content)
	res := last.Content[0].OfToolResult
	require.NotNil(t, res)
	return res
}

func resultText(res *anthropic.ToolResultBlockParam) string {
	if len(res.Content) == 0 || res.Content[0].OfText == nil {
		return ""
	}
	return res.Content[0].OfText.Text
}

func TestSendAnswersAndCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	store := newStore(t)
	d := NewDispatcher(store, model)

	model.EXPECT().
		SendTurn(gomock.Any(), gomock.Len(1), gomock.Len(2)).
		Return(&Turn{Text: "Hi there"}, nil).
		Times(1)

	reply, err := d.Send(t.Context(), "s1", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply.Text)
	assert.False(t, reply.Cached)

	reply, err = d.Send(t.Context(), "s1", "  hello ")
	require.NoError(t, err)
	assert.True(t, reply.Cached)
	assert.Equal(t, "Hi there", reply.Text)

	sess, ok := store.Get("s1")
	require.True(t, ok)
	assert.Len(t, sess.History(), 2)
}

func TestSendExecutesToolCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	rec := &recorder{}
	d := NewDispatcher(newStore(t), model, WithNotifier(rec))

	gomock.InOrder(
		model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolCall("call_1", "echo", `{"text":"ping"}`), nil),
		model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, history []anthropic.MessageParam, _ []tool.Definition) (*Turn, error) {
				require.Len(t, history, 3)
				res := lastToolResult(t, history)
				assert.Equal(t, "call_1", res.ToolUseID)
				assert.False(t, res.IsError.Value)
				assert.JSONEq(t, `{"echo":"ping"}`, resultText(res))
				return &Turn{Text: "pong"}, nil
			}),
	)

	reply, err := d.Send(t.Context(), "s1", "echo ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Text)
	assert.Equal(t, []string{"echo"}, reply.ToolCalls)
	assert.Equal(t, []string{EventToolCalled}, rec.events)
}

func TestToolFailureBecomesErrorResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	d := NewDispatcher(newStore(t), model)

	gomock.InOrder(
		model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolCall("call_1", "fail", `{}`), nil),
		model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, history []anthropic.MessageParam, _ []tool.Definition) (*Turn, error) {
				res := lastToolResult(t, history)
				assert.True(t, res.IsError.Value)

				var payload struct {
					Error   string         `json:"error"`
					Details map[string]any `json:"details"`
				}
				require.NoError(t, json.Unmarshal([]byte(resultText(res)), &payload))
				assert.Contains(t, payload.Error, "forbidden")
				assert.EqualValues(t, http.StatusForbidden, payload.Details["statusCode"])
				return &Turn{Text: "The token lacks access."}, nil
			}),
	)

	reply, err := d.Send(t.Context(), "s1", "do the failing thing")
	require.NoError(t, err)
	assert.Equal(t, "The token lacks access.", reply.Text)
}

func TestUnknownToolAndBadArguments(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	d := NewDispatcher(newStore(t), model)

	gomock.InOrder(
		model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&Turn{ToolCalls: []ToolCall{
				{ID: "a", Name: "nope", Input: json.RawMessage(`{}`)},
				{ID: "b", Name: "echo", Input: json.RawMessage(`{}`)},
			}}, nil),
		model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, history []anthropic.MessageParam, _ []tool.Definition) (*Turn, error) {
				last := history[len(history)-1]
				require.Len(t, last.Content, 2)
				for _, block := range last.Content {
					require.NotNil(t, block.OfToolResult)
					assert.True(t, block.OfToolResult.IsError.Value)
				}
				assert.Contains(t, resultText(last.Content[0].OfToolResult), "unknown tool")
				assert.Contains(t, resultText(last.Content[1].OfToolResult), `"field":"text"`)
				return &Turn{Text: "done"}, nil
			}),
	)

	_, err := d.Send(t.Context(), "s1", "x")
	require.NoError(t, err)
}

func TestToolCallLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	store := newStore(t)
	d := NewDispatcher(store, model, WithMaxToolRounds(2))

	model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCall("c", "echo", `{"text":"again"}`), nil).
		Times(3)

	reply, err := d.Send(t.Context(), "s1", "loop forever")
	require.NoError(t, err)
	assert.True(t, reply.LimitReached)
	assert.Contains(t, reply.Text, "Tool-call limit reached")
	assert.Len(t, reply.ToolCalls, 2)

	sess, _ := store.Get("s1")
	_, cached := sess.CachedReply("loop forever")
	assert.False(t, cached)
	history := sess.History()
	assert.Equal(t, anthropic.MessageParamRoleAssistant, history[len(history)-1].Role)
}

func TestModelErrorLeavesHistoryUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModel(ctrl)
	store := newStore(t)
	d := NewDispatcher(store, model)

	boom := errors.New("overloaded")
	model.EXPECT().SendTurn(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom)

	_, err := d.Send(t.Context(), "s1", "hello")
	assert.ErrorIs(t, err, boom)
	sess, _ := store.Get("s1")
	assert.Empty(t, sess.History())
}

func TestSendRejectsEmptyUtterance(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := NewDispatcher(newStore(t), NewMockModel(ctrl))

	_, err := d.Send(t.Context(), "s1", "   ")
	assert.True(t, types.IsValidation(err))
}

type recorder struct{ events []string }

func (r *recorder) Publish(_, messageType string, _ map[string]any) {
	r.events = append(r.events, messageType)
}
