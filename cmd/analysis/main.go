package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"doc-scope/internal/app"
	"doc-scope/internal/httputil"
	"doc-scope/internal/queue"
	"doc-scope/internal/store"
)

func main() {
	deps, err := app.Build(app.Options{Queue: true, LLM: true, Cache: true})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("analysis worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeAnalyze, func(ctx context.Context, task queue.Task) error {
			var payload queue.AnalyzePayload
			if err := task.Decode(&payload); err != nil {
				return err
			}
			return handleAnalyze(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.HealthPort, "analysis")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("analysis service stopped", "err", err)
	}
}

func handleAnalyze(ctx context.Context, deps app.Deps, payload queue.AnalyzePayload) error {
	doc, err := deps.Store.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	chunks, err := deps.Store.ListChunks(ctx, doc.ID)
	if err != nil {
		return err
	}
	chunks = selectChunks(chunks, payload.ChunkIDs)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no chunks to analyse", doc.ID)
	}

	summaryText, keyPoints, err := deps.LLM.Summarize(ctx, concatenateChunks(chunks))
	if err != nil {
		return err
	}
	if err := deps.Store.SaveSummary(ctx, doc.ID, store.Summary{
		DocumentID: doc.ID,
		Summary:    summaryText,
		KeyPoints:  keyPoints,
	}); err != nil {
		return err
	}

	// Chunks are embedded with their file name (and page) so that retrieval
	// can tell similar passages from different files apart.
	header := documentHeader(doc)
	texts := lo.Map(chunks, func(c store.Chunk, _ int) string { return header + c.Text })
	vectors, err := deps.Embedder.EmbedBatch(texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	embs := make([]store.Embedding, len(chunks))
	for i, c := range chunks {
		embs[i] = store.Embedding{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Model:   deps.Config.EmbeddingModel,
		}
	}
	if err := deps.Store.SaveEmbeddings(ctx, embs); err != nil {
		return err
	}

	if err := deps.Store.UpdateDocumentStatus(ctx, doc.ID, store.StatusReady); err != nil {
		return err
	}
	deps.Log.Info("document analysed", "document_id", doc.ID, "file_name", doc.Filename, "page", doc.Page, "chunks", len(chunks))

	// Cached answers were computed without this document.
	if deps.Cache != nil {
		if err := deps.Cache.InvalidateQueries(ctx); err != nil {
			deps.Log.Warn("failed to invalidate query cache", "document_id", doc.ID, "err", err)
		}
	}
	return nil
}

// selectChunks keeps the chunks named in the task; an empty list keeps all.
func selectChunks(chunks []store.Chunk, ids []uuid.UUID) []store.Chunk {
	if len(ids) == 0 {
		return chunks
	}
	wanted := lo.SliceToMap(ids, func(id uuid.UUID) (uuid.UUID, struct{}) { return id, struct{}{} })
	return lo.Filter(chunks, func(c store.Chunk, _ int) bool {
		_, ok := wanted[c.ID]
		return ok
	})
}

func documentHeader(doc store.Document) string {
	if doc.Page > 0 {
		return fmt.Sprintf("Document: %s (page %d)\n\n", doc.Filename, doc.Page)
	}
	return fmt.Sprintf("Document: %s\n\n", doc.Filename)
}

// concatenateChunks combines all chunk texts into a single string for summarization.
func concatenateChunks(chunks []store.Chunk) string {
	var builder strings.Builder
	for _, c := range chunks {
		builder.WriteString(c.Text)
		builder.WriteString("\n")
	}
	return builder.String()
}
