package llm

import (
	"context"

	"github.com/openai/openai-go/v3"
)

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	Summarize(ctx context.Context, text string) (string, []string, error)
	Answer(ctx context.Context, question, contextText string) (string, float32, error)
}

// Streamer is implemented by clients that can stream an answer as it is generated.
type Streamer interface {
	StreamAnswer(ctx context.Context, question, contextText string, onDelta func(string) error) (string, error)
}

// Chatter sends one chat request and returns the assistant message.
type Chatter interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// StreamChatter is a Chatter that can also stream.
type StreamChatter interface {
	Chatter
	StreamChat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, onDelta func(string) error) (string, error)
}
