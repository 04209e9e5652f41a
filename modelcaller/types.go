package modelcaller

import "context"

// Message is one chat-style message (spec §4.2).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the single shape every provider accepts.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Response is the single shape every provider returns: the assistant's
// raw text content (the Run Executor parses it as JSON, §4.5.3).
type Response struct {
	Content string `json:"content"`
}

// provider is the single async operation every backend implements.
type provider interface {
	Call(ctx context.Context, req Request) (Response, error)
}
