package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"doc-scope/internal/embeddings"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSummaryNotFound  = errors.New("summary not found")
)

// Document is one ingested unit. A PDF yields one Document per page, all
// sharing the same Filename.
type Document struct {
	ID        uuid.UUID      `json:"doc_id"`
	Filename  string         `json:"file_name"`
	Page      int            `json:"page_label,omitempty"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Text       string
	TokenCount int
}

type Summary struct {
	DocumentID uuid.UUID
	Summary    string
	KeyPoints  []string
}

type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

type SearchResult struct {
	Chunk   Chunk
	Score   float32
	Summary Summary
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	CreateDocument(ctx context.Context, filename string, page int) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	ListChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error)
	SaveSummary(ctx context.Context, docID uuid.UUID, summary Summary) error
	GetSummary(ctx context.Context, docID uuid.UUID) (Summary, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	TopK(ctx context.Context, docIDs []uuid.UUID, vector embeddings.Vector, k int) ([]SearchResult, error)
}

// ReadyIDs returns the ids of documents that finished ingestion.
func ReadyIDs(docs []Document) []uuid.UUID {
	var ids []uuid.UUID
	for _, d := range docs {
		if d.Status == StatusReady {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
