package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-companion/src/tools"
)

func selectionPrompt(query string, specs []tools.ToolSpec) string {
	var catalog strings.Builder
	for _, s := range specs {
		schema, _ := json.Marshal(s.InputSchema)
		fmt.Fprintf(&catalog, "- %s: %s\n  params schema: %s\n", s.Name, s.Description, schema)
	}

	return fmt.Sprintf(`You decide which personal-data tools must be called before answering a user's message.

USER MESSAGE:
%q

AVAILABLE TOOLS:
%s
RULES:
1. Only call a tool when its data would clearly improve the answer.
2. "tool_name" MUST exactly match a tool name listed above.
3. "params" MUST be a JSON object that satisfies the tool's params schema.
4. The same tool may be called more than once with different params.

OUTPUT FORMAT:
Respond with ONLY a JSON array. NO markdown code blocks. NO explanations.
[{"tool_name": "<name>", "params": {...}}]

When no tool is needed respond with:
[]`, query, catalog.String())
}

// ParseToolCalls extracts tool calls from model output. It accepts a bare
// JSON array, an array wrapped in prose or code fences, or a single call
// object. Anything else yields nil.
func ParseToolCalls(raw string) []ToolCall {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var calls []ToolCall
	if arr := extractJSON(raw, '[', ']'); arr != "" {
		if err := json.Unmarshal([]byte(arr), &calls); err != nil {
			calls = nil
		}
	}
	if calls == nil {
		obj := extractJSON(raw, '{', '}')
		if obj == "" {
			return nil
		}
		var one ToolCall
		if err := json.Unmarshal([]byte(obj), &one); err != nil {
			return nil
		}
		calls = []ToolCall{one}
	}

	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		c.ToolName = strings.TrimSpace(c.ToolName)
		if c.ToolName == "" {
			continue
		}
		if c.Params == nil {
			c.Params = map[string]any{}
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// extractJSON returns the first balanced openCh...closeCh span of s, skipping
// brackets inside JSON strings.
func extractJSON(s string, openCh, closeCh byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case openCh:
			if start == -1 {
				start = i
			}
			depth++
		case closeCh:
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
