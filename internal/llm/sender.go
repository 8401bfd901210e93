// Package llm provides the single-completion transport the planner uses to
// synthesise decompositions and interpret preferences.
package llm

import "context"

// Meta keys attached to every Response produced by Client.
const (
	MetaInputTokens  = "input_tokens"
	MetaOutputTokens = "output_tokens"
	MetaCost         = "cost"
	MetaModel        = "model"
)

// Response is the outcome of one completion call.
type Response struct {
	// OK is false when the model returned no usable text.
	OK bool
	// Raw is the concatenated text output.
	Raw string
	// Meta carries usage information, see the Meta* keys.
	Meta map[string]any
}

// Sender performs a single completion call.
type Sender interface {
	Send(ctx context.Context, prompt string) (Response, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, prompt string) (Response, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, prompt string) (Response, error) {
	return f(ctx, prompt)
}

// Cost returns the cost recorded in the response metadata, or 0.
func (r Response) Cost() float64 {
	switch v := r.Meta[MetaCost].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Tokens returns input plus output tokens recorded in the metadata. When no
// usage was recorded it falls back to a rough estimate of four characters
// per token of the raw output.
func (r Response) Tokens() int {
	in, okIn := asInt(r.Meta[MetaInputTokens])
	out, okOut := asInt(r.Meta[MetaOutputTokens])
	if okIn || okOut {
		return in + out
	}
	return EstimateTokens(r.Raw)
}

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
