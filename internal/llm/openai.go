package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"doc-scope/internal/llm/ollama"
	"doc-scope/internal/metrics"
)

const (
	defaultChatTimeout = 30 * time.Second

	summarizePrompt = "You are a concise assistant. First provide a brief summary paragraph, then list the key points as bullet points (using - or *)."
	answerPrompt    = "You answer questions concisely based only on the provided context."
)

// Assistant implements Client and Streamer on top of a chat backend.
type Assistant struct {
	provider string
	chat     Chatter
	timeout  time.Duration
}

// NewAssistant wraps any Chatter. provider labels the metrics.
func NewAssistant(provider string, chat Chatter, timeout time.Duration) *Assistant {
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	return &Assistant{provider: provider, chat: chat, timeout: timeout}
}

// NewOpenAIClient builds an Assistant against api.openai.com.
func NewOpenAIClient(apiKey string, model openai.ChatModel, temperature float64) (*Assistant, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return NewAssistant("openai", &openAIChat{client: &cli, model: model, temperature: temperature}, defaultChatTimeout), nil
}

// NewOllamaClient builds an Assistant backed by the keep-alive forwarding client.
// Local models are slower, so the request timeout comes from opts.
func NewOllamaClient(opts ollama.Options) (*Assistant, error) {
	cli, err := ollama.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama client: %w", err)
	}
	return NewAssistant("ollama", cli, opts.RequestTimeout), nil
}

func (a *Assistant) Summarize(ctx context.Context, text string) (string, []string, error) {
	if a == nil || a.chat == nil {
		return "", nil, fmt.Errorf("nil llm client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	content, err := a.chat.Chat(reqCtx, buildMessages(summarizePrompt, text))
	metrics.ObserveLLMRequest(a.provider, "summarize", start, err)
	if err != nil {
		return "", nil, err
	}
	if content == "" {
		return "", nil, fmt.Errorf("%s: empty response", a.provider)
	}
	summary, points := extractSummary(content)
	return summary, points, nil
}

func (a *Assistant) Answer(ctx context.Context, question, contextText string) (string, float32, error) {
	if a == nil || a.chat == nil {
		return "", 0, fmt.Errorf("nil llm client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	answer, err := a.chat.Chat(reqCtx, buildMessages(answerPrompt, answerInput(question, contextText)))
	metrics.ObserveLLMRequest(a.provider, "answer", start, err)
	if err != nil {
		return "", 0, err
	}
	if answer == "" {
		return "", 0, fmt.Errorf("%s: empty response", a.provider)
	}
	return answer, deriveConfidence(answer), nil
}

// StreamAnswer streams when the backend supports it and otherwise emits the
// whole answer as one delta.
func (a *Assistant) StreamAnswer(ctx context.Context, question, contextText string, onDelta func(string) error) (string, error) {
	if a == nil || a.chat == nil {
		return "", fmt.Errorf("nil llm client")
	}
	messages := buildMessages(answerPrompt, answerInput(question, contextText))

	sc, ok := a.chat.(StreamChatter)
	if !ok {
		answer, _, err := a.Answer(ctx, question, contextText)
		if err != nil {
			return "", err
		}
		if onDelta != nil {
			if err := onDelta(answer); err != nil {
				return answer, err
			}
		}
		return answer, nil
	}

	start := time.Now()
	answer, err := sc.StreamChat(ctx, messages, onDelta)
	metrics.ObserveLLMRequest(a.provider, "stream_answer", start, err)
	return answer, err
}

func answerInput(question, contextText string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}

// openAIChat calls the OpenAI Chat Completions API.
type openAIChat struct {
	client      *openai.Client
	model       openai.ChatModel
	temperature float64
}

func (c *openAIChat) params(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
}

func (c *openAIChat) Chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIChat) StreamChat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, onDelta func(string) error) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		sb.WriteString(chunk.Choices[0].Delta.Content)
		if onDelta != nil {
			if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
				return sb.String(), err
			}
		}
	}
	return sb.String(), stream.Err()
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}

// extractSummary splits the model response into summary and bullet points.
func extractSummary(content string) (string, []string) {
	var points, summaryLines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			points = append(points, strings.TrimLeft(trimmed, "-* "))
		} else {
			summaryLines = append(summaryLines, trimmed)
		}
	}
	return strings.Join(summaryLines, " "), points
}

// deriveConfidence scales with answer length; it is not a model probability.
func deriveConfidence(answer string) float32 {
	if answer == "" {
		return 0
	}
	return float32(0.5 + 0.5*math.Tanh(float64(len(answer))/200.0))
}
