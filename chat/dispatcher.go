package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/logging"
	"chat-tools-backend/metrics"
	"chat-tools-backend/session"
	"chat-tools-backend/types"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sirupsen/logrus"
)

// DefaultMaxToolRounds bounds how many times one turn may execute tool calls.
const DefaultMaxToolRounds = 5

// EventToolCalled is published after each tool execution.
const EventToolCalled = "tool.called"

// Reply is the answer to one utterance.
type Reply struct {
	Text         string   `json:"text"`
	Cached       bool     `json:"cached,omitempty"`
	LimitReached bool     `json:"limitReached,omitempty"`
	ToolCalls    []string `json:"toolCalls,omitempty"`
}

// Notifier receives tool progress events.
type Notifier interface {
	Publish(sessionID, messageType string, payload map[string]any)
}

// Dispatcher drives the model/tool loop for every session of a store.
type Dispatcher struct {
	store    *session.Store
	model    Model
	maxTools int
	notifier Notifier
	log      *logrus.Entry
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxToolRounds caps the tool-call rounds per message. n <= 0 keeps the default.
func WithMaxToolRounds(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTools = n
		}
	}
}

// WithNotifier reports every tool invocation to n.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// NewDispatcher returns a Dispatcher that keeps history in store and asks model for replies.
func NewDispatcher(store *session.Store, model Model, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		model:    model,
		maxTools: DefaultMaxToolRounds,
		log:      logging.NewLogger("chat"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func limitMessage(n int) string {
	return fmt.Sprintf("Tool-call limit reached: stopped after %d rounds of tool calls without a final answer. Try a narrower request.", n)
}

// Send answers utterance within the session. Turns of one session run one at a time.
// A cached answer is returned without calling the model. Tool failures are reported to
// the model as error results; only model failures are returned as errors.
func (d *Dispatcher) Send(ctx context.Context, sessionID, utterance string) (*Reply, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, &types.ValidationError{Field: "message", Message: "must not be empty"}
	}
	sess, err := d.store.GetOrCreate(sessionID)
	if err != nil {
		return nil, err
	}

	release := d.store.Locks().Acquire(keyedlock.Key(sessionID, "turn"))
	defer release()

	if cached, ok := sess.CachedReply(utterance); ok {
		metrics.ModelTurns.WithLabelValues("cached").Inc()
		return &Reply{Text: cached, Cached: true}, nil
	}

	log := d.log.WithField("session", sessionID)
	tools := sess.Tools()
	defs := tools.Definitions()
	history := sess.History()
	pending := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(utterance))}
	reply := &Reply{}

	for round := 0; ; round++ {
		turn, err := d.model.SendTurn(ctx, append(history[:len(history):len(history)], pending...), defs)
		if err != nil {
			metrics.ModelTurns.WithLabelValues("error").Inc()
			log.WithError(err).Error("Model call failed")
			return nil, fmt.Errorf("model request failed: %w", err)
		}

		if len(turn.ToolCalls) == 0 {
			pending = append(pending, assistantMessage(turn))
			sess.AppendHistory(pending...)
			sess.CacheReply(utterance, turn.Text)
			metrics.ModelTurns.WithLabelValues("answered").Inc()
			reply.Text = turn.Text
			return reply, nil
		}

		if round == d.maxTools {
			reply.Text = limitMessage(d.maxTools)
			reply.LimitReached = true
			pending = append(pending, anthropic.NewAssistantMessage(anthropic.NewTextBlock(reply.Text)))
			sess.AppendHistory(pending...)
			metrics.ModelTurns.WithLabelValues("limit_reached").Inc()
			log.WithField("rounds", round).Warn("Tool-call limit reached")
			return reply, nil
		}

		pending = append(pending, assistantMessage(turn))
		results := make([]anthropic.ContentBlockParamUnion, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			content, isError := d.execute(ctx, sess, call)
			results = append(results, anthropic.NewToolResultBlock(call.ID, content, isError))
			reply.ToolCalls = append(reply.ToolCalls, call.Name)
		}
		pending = append(pending, anthropic.NewUserMessage(results...))
	}
}

// execute runs one tool call and renders its result for the model.
func (d *Dispatcher) execute(ctx context.Context, sess *session.Session, call ToolCall) (string, bool) {
	log := d.log.WithFields(logrus.Fields{"session": sess.ID, "tool": call.Name})

	var (
		out any
		err error
	)
	if t, ok := sess.Tools().Get(call.Name); ok {
		out, err = t.Call(ctx, call.Input)
	} else {
		err = &types.ValidationError{Field: "tool", Message: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ToolCalls.WithLabelValues(call.Name, outcome).Inc()
	if d.notifier != nil {
		d.notifier.Publish(sess.ID, EventToolCalled, map[string]any{"tool": call.Name, "success": err == nil})
	}

	if err != nil {
		log.WithError(err).Warn("Tool call failed")
		data, _ := json.Marshal(errorPayload(err))
		return string(data), true
	}
	log.Debug("Tool call succeeded")
	if s, ok := out.(string); ok {
		return s, false
	}
	data, mErr := json.Marshal(out)
	if mErr != nil {
		data, _ = json.Marshal(errorPayload(fmt.Errorf("failed to encode result: %w", mErr)))
		return string(data), true
	}
	return string(data), false
}

// errorPayload is the structured {error, details} shape of a failed tool call.
func errorPayload(err error) map[string]any {
	details := map[string]any{}
	var apiErr *types.APIError
	var valErr *types.ValidationError
	switch {
	case errors.As(err, &apiErr):
		details["provider"] = apiErr.Provider
		details["statusCode"] = apiErr.StatusCode
		if apiErr.Remediation != "" {
			details["remediation"] = apiErr.Remediation
		}
		if apiErr.RequestID != "" {
			details["requestId"] = apiErr.RequestID
		}
		details["retryable"] = apiErr.Retryable()
	case errors.As(err, &valErr):
		details["field"] = valErr.Field
		details["reason"] = valErr.Message
	}
	if types.IsNotFound(err) {
		details["notFound"] = true
	}
	return map[string]any{"error": err.Error(), "details": details}
}
