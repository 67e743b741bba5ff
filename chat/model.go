// Package chat runs the conversation loop: it sends each utterance to the model, executes
// the tools the model asks for and feeds their results back until a final answer.
package chat

//go:generate mockgen -destination=mock_model_test.go -package=chat . Model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-tools-backend/tool"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
)

// ToolCall is one function-call request from the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Turn is one model reply: text, tool calls, or both.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
}

// Model sends the conversation so far and returns the next assistant turn.
type Model interface {
	SendTurn(ctx context.Context, history []anthropic.MessageParam, tools []tool.Definition) (*Turn, error)
}

// ModelOptions configures AnthropicModel.
type ModelOptions struct {
	APIKey    string
	Name      string
	MaxTokens int64
	System    string
	// Vertex AI, used instead of APIKey when UseVertex is set.
	UseVertex       bool
	VertexRegion    string
	VertexProjectID string
	// Extra request options, e.g. option.WithBaseURL in tests.
	RequestOptions []option.RequestOption
}

// AnthropicModel implements Model on the Messages API.
type AnthropicModel struct {
	client    anthropic.Client
	name      string
	maxTokens int64
	system    string
}

// NewAnthropicModel builds a client from opts, either with an API key or through Vertex
// AI with Google application default credentials.
func NewAnthropicModel(ctx context.Context, opts ModelOptions) (*AnthropicModel, error) {
	var reqOpts []option.RequestOption
	if opts.UseVertex {
		region := opts.VertexRegion
		if region == "" || region == "global" {
			region = "us-east5"
		}
		if opts.VertexProjectID == "" {
			return nil, errors.New("vertex project id is required when Vertex AI is enabled")
		}
		reqOpts = append(reqOpts, vertex.WithGoogleAuth(ctx, region, opts.VertexProjectID, "https://www.googleapis.com/auth/cloud-platform"))
	} else {
		if opts.APIKey == "" {
			return nil, errors.New("no Anthropic API key configured")
		}
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	reqOpts = append(reqOpts, opts.RequestOptions...)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(reqOpts...),
		name:      opts.Name,
		maxTokens: maxTokens,
		system:    opts.System,
	}, nil
}

func (m *AnthropicModel) SendTurn(ctx context.Context, history []anthropic.MessageParam, tools []tool.Definition) (*Turn, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		MaxTokens: m.maxTokens,
		Messages:  history,
		Tools:     toolParams(tools),
	}
	if m.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: m.system}}
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	turn := &Turn{}
	var text []string
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			if t := strings.TrimSpace(block.Text); t != "" {
				text = append(text, t)
			}
		case "tool_use":
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	turn.Text = strings.Join(text, "\n\n")
	if turn.Text == "" && len(turn.ToolCalls) == 0 {
		return nil, errors.New("empty response from model")
	}
	return turn, nil
}

func toolParams(defs []tool.Definition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Properties,
				Required:   d.Required,
			},
		}})
	}
	return out
}

// assistantMessage renders a turn back into conversation history.
func assistantMessage(turn *Turn) anthropic.MessageParam {
	var blocks []anthropic.ContentBlockParamUnion
	if turn.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
	}
	for _, call := range turn.ToolCalls {
		input := call.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
	}
	return anthropic.NewAssistantMessage(blocks...)
}
