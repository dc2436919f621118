package embeddings

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedderBatchOrder(t *testing.T) {
	inputs := make(chan []any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		got, _ := body["input"].([]any)
		inputs <- got

		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose; the embedder must place by index.
		fmt.Fprint(w, `{"object":"list","model":"nomic-embed-text","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("ollama", "nomic-embed-text", option.WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)

	vecs, err := e.EmbedBatch([]string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, Vector{1, 0}, vecs[0])
	assert.Equal(t, Vector{0, 1}, vecs[1])
	assert.Equal(t, []any{"first", "second"}, <-inputs)
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "")
	assert.Error(t, err)
}

func TestEmbedBatchEmpty(t *testing.T) {
	e, err := NewOpenAIEmbedder("key", "")
	require.NoError(t, err)
	vecs, err := e.EmbedBatch(nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
