package llm

import "context"

// Message is a single chat turn handed to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is the outcome of a completed (non-streaming) chat call.
type ChatResult struct {
	Content   string
	TokenIn   int
	TokenOut  int
	Model     string
	Provider  string
	LatencyMS int64
}

// Options tunes a single provider call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions returns the sampling parameters used for tutoring turns.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, MaxTokens: 2048}
}

// Provider abstracts a chat completion backend. Implementations report
// failures as typed errors; callers decide how failures surface to users.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (*ChatResult, error)
	ChatStream(ctx context.Context, messages []Message, opts Options, onDelta func(delta string) error) error
}
