package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cache provides query result caching
type Cache interface {
	// GetQueryResult returns nil, nil on a miss.
	GetQueryResult(ctx context.Context, key string) (*QueryResult, error)

	SetQueryResult(ctx context.Context, key string, result *QueryResult, ttl time.Duration) error

	// InvalidateQueries drops every cached query. Called after ingestion,
	// since a filtered query may start matching the new document.
	InvalidateQueries(ctx context.Context) error

	Close() error
}

// QueryResult represents a cached query response
type QueryResult struct {
	Answer      string   `json:"answer"`
	Confidence  float32  `json:"confidence"`
	Sources     []Source `json:"sources"`
	DocumentIDs []string `json:"document_ids"`
}

// Source represents a document chunk source in query results
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
	Preview    string  `json:"preview"` // Truncated text preview
}

// GenerateCacheKey hashes the question, the document scope and topK. The
// order of docIDs does not matter; an empty scope means "chosen by filter".
func GenerateCacheKey(question string, docIDs []string, topK int) string {
	ids := append([]string(nil), docIDs...)
	sort.Strings(ids)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", strings.TrimSpace(question), strings.Join(ids, ","), topK)
	return hex.EncodeToString(h.Sum(nil))
}
