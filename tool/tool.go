// Package tool describes callable tools: a name, a JSON schema for the arguments and a
// typed handler.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"chat-tools-backend/types"

	"github.com/invopop/jsonschema"
)

// Definition is what the model sees.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
	Required    []string       `json:"required,omitempty"`
}

// Tool is a definition bound to a handler.
type Tool struct {
	Definition
	call func(ctx context.Context, input json.RawMessage) (any, error)
}

var reflector = &jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// inlineReflector handles unnamed argument types such as struct{}, which have no
// definition for ExpandedStruct to expand.
var inlineReflector = &jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// New builds a tool whose arguments decode into T. Argument properties, descriptions and
// required fields come from T's json and jsonschema struct tags; fields without
// omitempty are required.
func New[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *Tool {
	props, required := schemaFor[T]()
	t := &Tool{
		Definition: Definition{
			Name:        name,
			Description: description,
			Properties:  props,
			Required:    required,
		},
	}
	t.call = func(ctx context.Context, input json.RawMessage) (any, error) {
		var args T
		if err := t.decode(input, &args); err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
	return t
}

// Call decodes input and runs the handler.
func (t *Tool) Call(ctx context.Context, input json.RawMessage) (any, error) {
	return t.call(ctx, input)
}

func (t *Tool) decode(input json.RawMessage, out any) error {
	input = bytes.TrimSpace(input)
	if len(input) == 0 || bytes.Equal(input, []byte("null")) {
		input = json.RawMessage("{}")
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(input, &present); err != nil {
		return &types.ValidationError{Field: "arguments", Message: fmt.Sprintf("%s expects a JSON object: %v", t.Name, err)}
	}
	for _, name := range t.Required {
		v, ok := present[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return &types.ValidationError{Field: name, Message: "required argument is missing"}
		}
	}
	if err := json.Unmarshal(input, out); err != nil {
		return &types.ValidationError{Field: "arguments", Message: err.Error()}
	}
	return nil
}

// schemaFor reflects T and returns its top-level properties and required names. The
// schema is round-tripped through JSON so callers get plain maps.
func schemaFor[T any]() (map[string]any, []string) {
	var zero T
	r := reflector
	if reflect.TypeFor[T]().Name() == "" {
		r = inlineReflector
	}
	schema := r.Reflect(&zero)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tool schema for %T: %v", zero, err))
	}
	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("tool schema for %T: %v", zero, err))
	}
	if doc.Properties == nil {
		doc.Properties = map[string]any{}
	}
	sort.Strings(doc.Required)
	return doc.Properties, doc.Required
}

// Set is an ordered collection of tools keyed by name. It is built once and then only
// read, so it carries no lock.
type Set struct {
	tools map[string]*Tool
	order []string
}

// NewSet returns a set containing tools. Later tools replace earlier ones of the same
// name.
func NewSet(tools ...*Tool) *Set {
	s := &Set{tools: make(map[string]*Tool)}
	for _, t := range tools {
		s.Add(t)
	}
	return s
}

// Add registers t.
func (s *Set) Add(t *Tool) {
	if _, exists := s.tools[t.Name]; !exists {
		s.order = append(s.order, t.Name)
	}
	s.tools[t.Name] = t
}

// Get looks a tool up by name.
func (s *Set) Get(name string) (*Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tools[name]
	return t, ok
}

// Definitions returns the definitions in registration order.
func (s *Set) Definitions() []Definition {
	if s == nil {
		return nil
	}
	defs := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.tools[name].Definition)
	}
	return defs
}

// Names returns tool names in registration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}
