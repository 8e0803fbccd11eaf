package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"surveychat/internal/logging"
	"surveychat/internal/retrieval"
)

// Registry errors.
var (
	ErrToolNameEmpty         = errors.New("tool name must not be empty")
	ErrToolExecuteNil        = errors.New("tool execute function must not be nil")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNotFound          = errors.New("tool not found")
)

// Property describes a single argument for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool exposes one pipeline stage behind a uniform name/schema/execute
// surface so stages can be invoked individually, outside a full Answer
// pass, for inspection and scripting.
type Tool struct {
	Name        string
	Description string
	Execute     ExecuteFunc
	Schema      ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Registry holds the pipeline tools. It is thread-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	logging.PipelineDebug("registered tool %s", tool.Name)
	return nil
}

// MustRegister registers a tool and panics on error. For static
// registration at construction time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call looks up a tool and executes it.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool.Execute(ctx, args)
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// newToolRegistry builds the standard registry over the orchestrator's
// own collaborators.
func newToolRegistry(o *Orchestrator) *Registry {
	r := NewRegistry()

	r.MustRegister(&Tool{
		Name:        "retrieve_context",
		Description: "Retrieve the most relevant codebook passages for a question.",
		Schema: ToolSchema{
			Required: []string{"question"},
			Properties: map[string]Property{
				"question": {Type: "string", Description: "Natural-language question about the survey data"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			question, err := stringArg(args, "question")
			if err != nil {
				return "", err
			}
			passages := o.retriever.Retrieve(ctx, question, o.topK)
			return retrieval.FormatContext(passages), nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "synthesize_sql",
		Description: "Generate a SQL candidate for a question; falls back to a heuristic template when the model declines.",
		Schema: ToolSchema{
			Required: []string{"question"},
			Properties: map[string]Property{
				"question": {Type: "string", Description: "Natural-language question about the survey data"},
				"context":  {Type: "string", Description: "Codebook context text; retrieved on demand when absent"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			question, err := stringArg(args, "question")
			if err != nil {
				return "", err
			}
			contextText, _ := args["context"].(string)
			if contextText == "" {
				contextText = retrieval.FormatContext(o.retriever.Retrieve(ctx, question, o.topK))
			}
			candidate, err := o.synth.Synthesize(ctx, question, contextText, nil)
			if err != nil {
				return "", err
			}
			if candidate == "" {
				candidate = o.fallback.Build(question, contextText)
			}
			return candidate, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "execute_sql",
		Description: "Run a read-only SQL statement against the survey backend and return the result as JSON.",
		Schema: ToolSchema{
			Required: []string{"sql"},
			Properties: map[string]Property{
				"sql": {Type: "string", Description: "SELECT statement over the survey table"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			sql, err := stringArg(args, "sql")
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(sql) == "" {
				return "", errors.New("sql must not be empty")
			}
			result := o.executor.Execute(ctx, sql)
			env := NewEnvelope(sql, "", result)
			out, err := json.Marshal(env)
			if err != nil {
				return "", fmt.Errorf("failed to encode result: %w", err)
			}
			return string(out), nil
		},
	})

	return r
}
