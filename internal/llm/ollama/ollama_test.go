package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama records request bodies and answers in the OpenAI-compatible format.
type fakeOllama struct {
	mu     sync.Mutex
	bodies []map[string]any
	paths  []string
}

func (f *fakeOllama) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()

		stream, _ := body["stream"].(bool)
		switch {
		case r.URL.Path == "/v1/chat/completions" && stream:
			writeSSE(w, []string{
				`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"llama3","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
				`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"llama3","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			})
		case r.URL.Path == "/v1/chat/completions":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello"}}]}`)
		case r.URL.Path == "/v1/completions" && stream:
			writeSSE(w, []string{
				`{"id":"c2","object":"text_completion","created":1,"model":"llama3","choices":[{"index":0,"text":"Good ","finish_reason":""}]}`,
				`{"id":"c2","object":"text_completion","created":1,"model":"llama3","choices":[{"index":0,"text":"day","finish_reason":"stop"}]}`,
			})
		case r.URL.Path == "/v1/completions":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"c2","object":"text_completion","created":1,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","text":"Good day"}]}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakeOllama) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[len(f.bodies)-1]
}

func writeSSE(w http.ResponseWriter, events []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeOllama) {
	t.Helper()
	fake := &fakeOllama{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.Model == "" {
		opts.Model = "llama3"
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c, fake
}

func userMessage(text string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(text),
				},
			},
		},
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New(Options{Model: "llama3"})
	require.NoError(t, err)

	assert.Equal(t, "5m", c.KeepAlive())
	assert.Equal(t, "llama3", c.Model())
	assert.Equal(t, DefaultTemperature, c.temperature)
	assert.Equal(t, DefaultContextWindow, c.contextWindow)
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestKeepAliveForwardedOnEveryCall(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		keepAlive string
		want      string
	}{
		{"default", "", "5m"},
		{"custom duration", "30m", "30m"},
		{"keep forever", "-1", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient(t, Options{KeepAlive: tt.keepAlive})

			calls := []struct {
				name string
				do   func() (string, error)
				want string
			}{
				{"chat", func() (string, error) { return c.Chat(ctx, userMessage("hi")) }, "Hello"},
				{"stream chat", func() (string, error) { return c.StreamChat(ctx, userMessage("hi"), nil) }, "Hello"},
				{"complete", func() (string, error) { return c.Complete(ctx, "hi") }, "Good day"},
				{"stream complete", func() (string, error) { return c.StreamComplete(ctx, "hi", nil) }, "Good day"},
			}
			for _, call := range calls {
				out, err := call.do()
				require.NoError(t, err, call.name)
				assert.Equal(t, call.want, out, call.name)
				assert.Equal(t, tt.want, fake.lastBody()["keep_alive"], call.name)
			}
			assert.Len(t, fake.bodies, len(calls))
		})
	}
}

func TestBackendOptionsMerged(t *testing.T) {
	c, fake := newTestClient(t, Options{
		Temperature:       lo.ToPtr(0.1),
		ContextWindow:     8192,
		AdditionalOptions: map[string]any{"num_gpu": 1, "temperature": 0.3},
	})

	_, err := c.Chat(context.Background(), userMessage("hi"))
	require.NoError(t, err)

	body := fake.lastBody()
	assert.Equal(t, "llama3", body["model"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-9)

	opts, ok := body["options"].(map[string]any)
	require.True(t, ok, "options missing from request body")
	assert.InDelta(t, 8192, opts["num_ctx"], 0)
	assert.InDelta(t, 1, opts["num_gpu"], 0)
	assert.InDelta(t, 0.3, opts["temperature"], 1e-9)
}

func TestZeroTemperatureIsSent(t *testing.T) {
	c, fake := newTestClient(t, Options{Temperature: lo.ToPtr(0.0)})

	_, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)

	body := fake.lastBody()
	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 0)
	opts, ok := body["options"].(map[string]any)
	require.True(t, ok, "options missing from request body")
	assert.InDelta(t, 0, opts["temperature"], 0)
}

func TestStreamChatDeltas(t *testing.T) {
	c, fake := newTestClient(t, Options{})

	var deltas []string
	out, err := c.StreamChat(context.Background(), userMessage("hi"), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, true, fake.lastBody()["stream"])
}

func TestStreamCallbackErrorStops(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	stop := fmt.Errorf("client went away")

	out, err := c.StreamComplete(context.Background(), "hi", func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "Good ", out)
}

func TestBackendErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"model \"missing\" not found","type":"api_error"}}`)
	}))
	defer srv.Close()

	c, err := New(Options{Model: "missing", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), userMessage("hi"))
	require.Error(t, err)

	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
