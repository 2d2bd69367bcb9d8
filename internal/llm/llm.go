package llm

import "context"

// Client abstracts the language model endpoint. The pipeline treats it as an
// unreliable, rate-limited dependency; every call site carries a fallback.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest carries one prompt and its generation parameters.
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSONOnly asks the model to emit a single JSON object.
	JSONOnly bool
	// Model overrides the client default when set.
	Model string
}

// CompletionResponse is the raw model output.
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Disabled is a Client whose calls always fail with Err. It stands in when no
// API key is configured, so every stage falls back to its labeled mock output.
type Disabled struct {
	Err error
}

func (d Disabled) Complete(context.Context, CompletionRequest) (CompletionResponse, error) {
	return CompletionResponse{}, d.Err
}
