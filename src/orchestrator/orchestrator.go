// Package orchestrator asks an LLM which data tools a message needs, runs
// them concurrently and turns their results into prompt augmentation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/go-companion/src/concurrent"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/tools"
)

const defaultMaxConcurrency = 8

// ToolCall is one tool invocation proposed by the selection model.
type ToolCall struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

// ToolResult is the outcome of one ToolCall. Exactly one of Output and Error
// is meaningful; Error carries a human-readable marker.
type ToolResult struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (r ToolResult) Failed() bool { return r.Error != "" }

// Options configures an Orchestrator.
type Options struct {
	// Model picks tools. It should run at a low temperature.
	Model models.Agent
	Tools *tools.Registry
	// MaxConcurrency bounds the fan-out. Zero picks a default.
	MaxConcurrency int
	Logger         *zap.Logger
}

type Orchestrator struct {
	model       models.Agent
	tools       *tools.Registry
	concurrency int
	log         *zap.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Model == nil {
		return nil, errors.New("orchestrator: tool selection model is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("orchestrator: tool registry is required")
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		model:       opts.Model,
		tools:       opts.Tools,
		concurrency: opts.MaxConcurrency,
		log:         opts.Logger,
	}, nil
}

// DetermineTools asks the model which tools to call for query. Output that
// is not a JSON list of calls yields no calls and no error; only a transport
// failure from the model is returned.
func (o *Orchestrator) DetermineTools(ctx context.Context, query string) ([]ToolCall, error) {
	specs := o.tools.Specs()
	if len(specs) == 0 {
		return nil, nil
	}

	raw, err := models.GenerateText(ctx, o.model, selectionPrompt(query, specs))
	if err != nil {
		return nil, fmt.Errorf("tool selection: %w", err)
	}
	calls := ParseToolCalls(raw)
	if calls == nil && strings.TrimSpace(raw) != "" && strings.TrimSpace(raw) != "[]" {
		o.log.Debug("tool selection output not understood", zap.String("raw", truncate(raw, 200)))
	}
	return calls, nil
}

// Execute runs every call concurrently and waits for all of them. It never
// fails: unknown tools, invalid arguments, errors and panics are reported in
// the matching ToolResult. len(result) == len(calls), in call order.
func (o *Orchestrator) Execute(ctx context.Context, ownerID string, calls []ToolCall) []ToolResult {
	results := concurrent.Gather(ctx, calls, func(ctx context.Context, call ToolCall) ToolResult {
		return o.invoke(ctx, ownerID, call)
	}, o.concurrency)

	for _, r := range results {
		if r.Failed() {
			o.log.Warn("tool failed", zap.String("tool", r.ToolName), zap.String("error", r.Error))
		}
	}
	return results
}

func (o *Orchestrator) invoke(ctx context.Context, ownerID string, call ToolCall) (res ToolResult) {
	res = ToolResult{ToolName: call.ToolName, Params: call.Params}

	tool, spec, ok := o.tools.Lookup(call.ToolName)
	if !ok {
		res.Error = "Unknown tool: " + call.ToolName
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Output = ""
			res.Error = fmt.Sprintf("Error: %v", r)
		}
	}()

	args, err := tools.PrepareArguments(spec, call.Params)
	if err != nil {
		res.Error = "Error: " + err.Error()
		return res
	}
	res.Params = args

	resp, err := tool.Invoke(ctx, tools.ToolRequest{OwnerID: ownerID, Arguments: args})
	if err != nil {
		res.Error = "Error: " + err.Error()
		return res
	}
	res.Output = resp.Content
	return res
}

// Augmentation is the tool context gathered for one turn.
type Augmentation struct {
	Calls   []ToolCall
	Results []ToolResult
}

func (a Augmentation) Empty() bool { return len(a.Results) == 0 }

// Serialize renders each result as an indented JSON object, one after the
// other. An empty augmentation serializes to "".
func (a Augmentation) Serialize() string {
	parts := make([]string, 0, len(a.Results))
	for _, r := range a.Results {
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			b, _ = json.MarshalIndent(ToolResult{ToolName: r.ToolName, Error: "Error: " + err.Error()}, "", "  ")
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "\n")
}

// Gather selects and runs tools for query. It always succeeds; a failed
// selection call degrades to no tools.
func (o *Orchestrator) Gather(ctx context.Context, ownerID, query string) Augmentation {
	calls, err := o.DetermineTools(ctx, query)
	if err != nil {
		o.log.Warn("tool selection failed, continuing without tools", zap.Error(err))
		return Augmentation{}
	}
	if len(calls) == 0 {
		return Augmentation{}
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.ToolName
	}
	o.log.Debug("tools selected", zap.Strings("tools", names))

	return Augmentation{Calls: calls, Results: o.Execute(ctx, ownerID, calls)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
