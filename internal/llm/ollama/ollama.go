// Package ollama wraps the OpenAI client for an Ollama server so that every
// request carries the keep_alive directive and the backend options.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultBaseURL is where a local Ollama server listens.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultTemperature applies when Options.Temperature is nil.
	DefaultTemperature = 0.75
	// DefaultContextWindow is sent as num_ctx when Options.ContextWindow is unset.
	DefaultContextWindow = 3900
	// DefaultKeepAlive keeps the model loaded for five minutes after a request.
	DefaultKeepAlive      = "5m"
	defaultRequestTimeout = 120 * time.Second
)

// Options mirrors the constructor of the wrapped client plus KeepAlive.
type Options struct {
	Model   string
	BaseURL string
	// Temperature is nil for DefaultTemperature; zero is sent as zero.
	Temperature       *float64
	AdditionalOptions map[string]any
	ContextWindow     int
	// KeepAlive controls how long Ollama keeps the model loaded after the last request.
	KeepAlive      string
	RequestTimeout time.Duration
	MaxRetries     int
	HTTPClient     *http.Client
}

// Client delegates to openai.Client and injects keep_alive into every request.
type Client struct {
	model         string
	temperature   float64
	contextWindow int
	keepAlive     string
	additional    map[string]any
	client        *openai.Client
}

// APIBase returns the OpenAI-compatible root of an Ollama server.
func APIBase(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/v1/"
}

// New builds a Client against opts.BaseURL, filling defaults for unset fields.
func New(opts Options) (*Client, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	if opts.KeepAlive == "" {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	clientOpts := []option.RequestOption{
		option.WithBaseURL(APIBase(opts.BaseURL)),
		// Ollama ignores the key but the client always sends one.
		option.WithAPIKey("ollama"),
		option.WithRequestTimeout(opts.RequestTimeout),
	}
	if opts.MaxRetries > 0 {
		clientOpts = append(clientOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	cli := openai.NewClient(clientOpts...)

	additional := make(map[string]any, len(opts.AdditionalOptions))
	for k, v := range opts.AdditionalOptions {
		additional[k] = v
	}
	return &Client{
		model:         opts.Model,
		temperature:   temperature,
		contextWindow: opts.ContextWindow,
		keepAlive:     opts.KeepAlive,
		additional:    additional,
		client:        &cli,
	}, nil
}

// Model is the model name sent with every request.
func (c *Client) Model() string { return c.model }

// KeepAlive is the keep_alive value sent with every request.
func (c *Client) KeepAlive() string { return c.keepAlive }

// Complete sends a single prompt to the completions endpoint.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Completions.New(ctx, c.completionParams(prompt), c.requestOptions()...)
	if err != nil {
		return "", fmt.Errorf("ollama complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama: no choices returned")
	}
	return resp.Choices[0].Text, nil
}

// StreamComplete streams a completion, calling onDelta for every non-empty
// fragment. It returns the concatenated text.
func (c *Client) StreamComplete(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	stream := c.client.Completions.NewStreaming(ctx, c.completionParams(prompt), c.requestOptions()...)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
			continue
		}
		delta := chunk.Choices[0].Text
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return sb.String(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), fmt.Errorf("ollama stream complete: %w", err)
	}
	return sb.String(), nil
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.chatParams(messages), c.requestOptions()...)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat streams a chat completion, calling onDelta for every non-empty
// content fragment. It returns the concatenated answer.
func (c *Client) StreamChat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, onDelta func(string) error) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.chatParams(messages), c.requestOptions()...)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return sb.String(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), fmt.Errorf("ollama stream chat: %w", err)
	}
	return sb.String(), nil
}

func (c *Client) chatParams(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
}

func (c *Client) completionParams(prompt string) openai.CompletionNewParams {
	return openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(c.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}
}

// requestOptions are appended to every call; they patch the JSON body.
func (c *Client) requestOptions() []option.RequestOption {
	return []option.RequestOption{
		option.WithJSONSet("keep_alive", c.keepAlive),
		option.WithJSONSet("options", c.backendOptions()),
	}
}

// backendOptions merges the model options; AdditionalOptions win on conflict.
func (c *Client) backendOptions() map[string]any {
	opts := map[string]any{
		"temperature": c.temperature,
		"num_ctx":     c.contextWindow,
	}
	for k, v := range c.additional {
		opts[k] = v
	}
	return opts
}
