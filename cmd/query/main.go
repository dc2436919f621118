package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"doc-scope/internal/app"
	"doc-scope/internal/cache"
	"doc-scope/internal/httputil"
	"doc-scope/internal/store"
)

const defaultTopK = 5

var errNoDocuments = errors.New("no ready documents to search")

type queryRequest struct {
	Question    string   `json:"question" validate:"required,min=3,max=500"`
	DocumentIDs []string `json:"document_ids" validate:"omitempty,dive,uuid4"`
	TopK        int      `json:"top_k" validate:"omitempty,min=1,max=20"`
}

type queryResponse struct {
	Answer      string         `json:"answer"`
	Sources     []cache.Source `json:"sources"`
	Confidence  float32        `json:"confidence"`
	DocumentIDs []string       `json:"document_ids"`
	Cached      bool           `json:"cached"`
}

// scope is the set of documents a question is answered from.
type scope struct {
	ids      []uuid.UUID
	filtered bool
}

func main() {
	deps, err := app.Build(app.Options{LLM: true, Cache: true})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.With(httputil.WithTimeout(2*time.Minute)).Post("/api/query", queryHandler(deps))
	r.Post("/api/query/stream", streamHandler(deps))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("query service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func queryHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !httputil.DecodeAndValidate(deps.Log, w, r, &req) {
			return
		}
		if req.TopK == 0 {
			req.TopK = defaultTopK
		}
		ctx := r.Context()

		cacheKey := cache.GenerateCacheKey(req.Question, req.DocumentIDs, req.TopK)
		if cached := lookupCache(ctx, deps, cacheKey); cached != nil {
			httputil.WriteJSON(w, http.StatusOK, responseFromCache(cached))
			return
		}

		results, sc, ok := retrieve(w, r, deps, req)
		if !ok {
			return
		}

		answer, confidence, err := deps.LLM.Answer(ctx, req.Question, buildContext(results))
		if err != nil {
			httputil.Fail(deps.Log, w, "llm failed", err, http.StatusInternalServerError)
			return
		}

		resp := queryResponse{
			Answer:      answer,
			Sources:     buildSources(results),
			Confidence:  confidence,
			DocumentIDs: idStrings(sc.ids),
		}
		storeCache(ctx, deps, cacheKey, resp)
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// streamHandler answers as server-sent events: one "sources" event, a
// "delta" event per generated fragment, then "done" or "error".
func streamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !httputil.DecodeAndValidate(deps.Log, w, r, &req) {
			return
		}
		if req.TopK == 0 {
			req.TopK = defaultTopK
		}
		ctx := r.Context()

		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.Fail(deps.Log, w, "streaming unsupported", nil, http.StatusInternalServerError)
			return
		}

		cacheKey := cache.GenerateCacheKey(req.Question, req.DocumentIDs, req.TopK)
		cached := lookupCache(ctx, deps, cacheKey)

		var results []store.SearchResult
		if cached == nil {
			if results, _, ok = retrieve(w, r, deps, req); !ok {
				return
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		send := func(event string, data any) error {
			body, err := json.Marshal(data)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		if cached != nil {
			_ = send("sources", cached.Sources)
			_ = send("delta", map[string]string{"text": cached.Answer})
			_ = send("done", map[string]any{"answer": cached.Answer, "cached": true})
			return
		}

		sources := buildSources(results)
		if err := send("sources", sources); err != nil {
			deps.Log.Warn("client went away", "err", err)
			return
		}
		answer, err := deps.LLM.StreamAnswer(ctx, req.Question, buildContext(results), func(delta string) error {
			return send("delta", map[string]string{"text": delta})
		})
		if err != nil {
			deps.Log.Error("error streaming answer", "err", err)
			_ = send("error", map[string]string{"error": "llm failed"})
			return
		}
		_ = send("done", map[string]any{"answer": answer, "cached": false})
	}
}

// retrieve resolves the document scope, embeds the question and runs the
// vector search. It writes the error response itself on failure.
func retrieve(w http.ResponseWriter, r *http.Request, deps app.Deps, req queryRequest) ([]store.SearchResult, scope, bool) {
	ctx := r.Context()
	sc, err := resolveScope(ctx, deps, req)
	if errors.Is(err, errNoDocuments) {
		httputil.Fail(deps.Log, w, err.Error(), err, http.StatusNotFound)
		return nil, scope{}, false
	}
	if err != nil {
		httputil.Fail(deps.Log, w, "failed to resolve documents", err, http.StatusInternalServerError)
		return nil, scope{}, false
	}

	vec, err := deps.Embedder.Embed(req.Question)
	if err != nil {
		httputil.Fail(deps.Log, w, "failed to embed question", err, http.StatusInternalServerError)
		return nil, scope{}, false
	}
	results, err := deps.Store.TopK(ctx, sc.ids, vec, req.TopK)
	if err != nil {
		httputil.Fail(deps.Log, w, "search failed", err, http.StatusInternalServerError)
		return nil, scope{}, false
	}
	deps.Log.Info("retrieved context", "documents", len(sc.ids), "filtered", sc.filtered, "results", len(results))
	return results, sc, true
}

// resolveScope uses the explicit ids when given. Otherwise the context filter
// picks ready documents relevant to the question, falling back to every
// ready document when it selects none.
func resolveScope(ctx context.Context, deps app.Deps, req queryRequest) (scope, error) {
	if len(req.DocumentIDs) > 0 {
		return scope{ids: parseDocumentIDs(req.DocumentIDs)}, nil
	}

	docs, err := deps.Store.ListDocuments(ctx)
	if err != nil {
		return scope{}, err
	}
	ready := store.ReadyIDs(docs)
	if len(ready) == 0 {
		return scope{}, errNoDocuments
	}

	res, err := deps.Filter.Filter(ctx, req.Question, listed(docs))
	if err != nil {
		return scope{}, err
	}
	selected := lo.Intersect(res.DocumentIDs, ready)
	if len(selected) == 0 {
		return scope{ids: ready}, nil
	}
	return scope{ids: selected, filtered: true}, nil
}

// listed serves an already fetched listing to the context filter.
type listed []store.Document

func (l listed) ListDocuments(context.Context) ([]store.Document, error) { return l, nil }

func lookupCache(ctx context.Context, deps app.Deps, key string) *cache.QueryResult {
	if deps.Cache == nil {
		return nil
	}
	cached, err := deps.Cache.GetQueryResult(ctx, key)
	if err != nil {
		deps.Log.Warn("cache read failed", "err", err)
		return nil
	}
	if cached != nil {
		deps.Log.Info("cache hit", "key", key)
	}
	return cached
}

func storeCache(ctx context.Context, deps app.Deps, key string, resp queryResponse) {
	if deps.Cache == nil {
		return
	}
	if err := deps.Cache.SetQueryResult(ctx, key, &cache.QueryResult{
		Answer:      resp.Answer,
		Confidence:  resp.Confidence,
		Sources:     resp.Sources,
		DocumentIDs: resp.DocumentIDs,
	}, deps.Config.CacheTTLDuration()); err != nil {
		deps.Log.Warn("failed to cache result", "err", err)
	}
}

func responseFromCache(c *cache.QueryResult) queryResponse {
	return queryResponse{
		Answer:      c.Answer,
		Sources:     c.Sources,
		Confidence:  c.Confidence,
		DocumentIDs: c.DocumentIDs,
		Cached:      true,
	}
}

// parseDocumentIDs converts string UUIDs to uuid.UUID slice, skipping invalid ones.
func parseDocumentIDs(ids []string) []uuid.UUID {
	var result []uuid.UUID
	for _, s := range ids {
		if id, err := uuid.Parse(s); err == nil {
			result = append(result, id)
		}
	}
	return result
}

func idStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}

// buildContext concatenates chunk texts from search results for LLM context.
func buildContext(results []store.SearchResult) string {
	var builder strings.Builder
	for _, res := range results {
		builder.WriteString(res.Chunk.Text)
		builder.WriteString("\n")
	}
	return builder.String()
}

// buildSources converts search results into sources with truncated previews.
func buildSources(results []store.SearchResult) []cache.Source {
	sources := make([]cache.Source, len(results))
	for i, res := range results {
		sources[i] = cache.Source{
			ChunkID:    res.Chunk.ID.String(),
			DocumentID: res.Chunk.DocumentID.String(),
			Score:      res.Score,
			Preview:    truncate(res.Chunk.Text, 150),
		}
	}
	return sources
}

// truncate limits text to maxLen bytes, cutting at a word boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if idx := strings.LastIndex(s[:maxLen], " "); idx > 0 {
		return s[:idx] + "..."
	}
	return s[:maxLen] + "..."
}
