// Package agent holds the structured call wrapper and the five stage agents
// of the bid generation pipeline. Each agent is a prompt template, an output
// schema and a named fallback value. Agents are stateless and safe for
// concurrent use; callers substitute the fallback at the stage boundary when
// a call fails.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bidforge/internal/llm"
	"bidforge/internal/prompt"
)

// SchemaError marks a model response that failed to parse or validate against
// a stage's output schema. It is never retried at this layer.
type SchemaError struct {
	Stage string
	Cause error
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("%s: response does not conform to schema: %v", e.Stage, e.Cause)
}

func (e SchemaError) Unwrap() error { return e.Cause }

// callSpec fixes one stage's prompt, generation parameters and identity.
type callSpec struct {
	stage       string
	tmpl        prompt.Template
	temperature float64
	maxTokens   int
}

// invoke renders the template, performs one model call and decodes the raw
// response into T. Missing template inputs are a caller error. Parse and
// validation failures escalate as SchemaError; nothing is retried here.
func invoke[T any](ctx context.Context, client llm.Client, spec callSpec, inputs map[string]string, validate func(*T) error) (T, error) {
	var out T
	rendered, err := spec.tmpl.Render(inputs)
	if err != nil {
		return out, fmt.Errorf("%s: %w", spec.stage, err)
	}
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Prompt:      rendered,
		Temperature: spec.temperature,
		MaxTokens:   spec.maxTokens,
		JSONOnly:    true,
	})
	if err != nil {
		return out, fmt.Errorf("%s: %w", spec.stage, err)
	}
	raw := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, SchemaError{Stage: spec.stage, Cause: err}
	}
	if validate != nil {
		if err := validate(&out); err != nil {
			return out, SchemaError{Stage: spec.stage, Cause: err}
		}
	}
	return out, nil
}

// extractJSON strips markdown code fences and surrounding prose, leaving the
// outermost JSON object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func nonEmpty(field string, items []string) error {
	if len(items) == 0 {
		return fmt.Errorf("%s must not be empty", field)
	}
	return nil
}
