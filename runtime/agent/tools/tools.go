// Package tools defines the callable tool surface exposed to LLM turns:
// tool descriptors with JSON-schemaed inputs, typed call results, and tool
// groups with permission metadata. The tool loop consumes these descriptors;
// providers (MCP adapters, native registrations, reflected objects) produce
// them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Ident is the strong type for tool identifiers. Use it when referencing
// tools in maps or APIs to avoid accidental mixing with free-form strings.
type Ident string

func (i Ident) String() string { return string(i) }

type (
	// Definition describes a tool schema passed to model providers for
	// function calling. The model uses the name and description to decide
	// when to invoke the tool and the schema to generate valid arguments.
	Definition struct {
		// Name is the identifier presented to the model. Some providers
		// restrict allowed characters (alphanumeric plus underscores).
		Name Ident
		// Description documents the tool for prompting purposes.
		Description string
		// InputSchema is the JSON Schema describing the tool's input, as a
		// map[string]any with "type": "object", "properties" and "required".
		InputSchema map[string]any
	}

	// Result is the outcome of a tool call. Exactly one of the three concrete
	// kinds is produced per call: Text, WithArtifact, or Error.
	Result interface{ isResult() }

	// Text is a plain textual tool result fed back to the model verbatim.
	Text struct {
		Content string
	}

	// WithArtifact carries a textual result plus an opaque artifact (file,
	// image handle, structured value) that the platform surfaces out-of-band.
	// Only Content is fed back to the model.
	WithArtifact struct {
		Content  string
		Artifact any
	}

	// Error is a failed tool call reported back to the model. The tool loop
	// prefixes Message with "Error: " when rendering the result message.
	Error struct {
		Message string
	}

	// Tool bundles a definition with its implementation. A tool may advertise
	// inner tools for progressive disclosure: invoking it makes the inner
	// tools available to subsequent turns (and removes the outer tool when
	// RemoveOnInvoke is set).
	Tool struct {
		// Definition is the schema surface presented to the model.
		Definition Definition
		// Groups lists the tool group roles this tool belongs to.
		Groups []string
		// Call executes the tool with the raw JSON arguments emitted by the
		// model. Implementations return one of the Result kinds; returning an
		// error aborts the tool loop unless the error is a control-flow
		// signal.
		Call func(ctx context.Context, args json.RawMessage) (Result, error)
		// Inner lists tools revealed when this tool is invoked. Nil for leaf
		// tools.
		Inner []*Tool
		// RemoveOnInvoke removes this tool from the available set once it has
		// been invoked and its inner tools injected.
		RemoveOnInvoke bool

		compileOnce sync.Once
		compiled    *jsonschema.Schema
		compileErr  error
	}
)

func (Text) isResult()         {}
func (WithArtifact) isResult() {}
func (Error) isResult()        {}

// Name returns the tool's identifier.
func (t *Tool) Name() Ident { return t.Definition.Name }

// ValidateArgs checks the raw arguments against the tool's input schema.
// The schema is compiled once per tool and cached. Tools without a schema
// accept any arguments.
func (t *Tool) ValidateArgs(args json.RawMessage) error {
	if t.Definition.InputSchema == nil {
		return nil
	}
	t.compileOnce.Do(func() {
		raw, err := json.Marshal(t.Definition.InputSchema)
		if err != nil {
			t.compileErr = fmt.Errorf("tools: encode schema for %q: %w", t.Definition.Name, err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			t.compileErr = fmt.Errorf("tools: parse schema for %q: %w", t.Definition.Name, err)
			return
		}
		compiler := jsonschema.NewCompiler()
		url := "arcline:///tools/" + string(t.Definition.Name) + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			t.compileErr = fmt.Errorf("tools: add schema for %q: %w", t.Definition.Name, err)
			return
		}
		t.compiled, t.compileErr = compiler.Compile(url)
	})
	if t.compileErr != nil {
		return t.compileErr
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("tools: arguments for %q are not valid JSON: %w", t.Definition.Name, err)
	}
	if err := t.compiled.Validate(inst); err != nil {
		return fmt.Errorf("tools: arguments for %q rejected: %w", t.Definition.Name, err)
	}
	return nil
}
