package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"doc-scope/internal/app"
	"doc-scope/internal/chunker"
	"doc-scope/internal/httputil"
	"doc-scope/internal/queue"
	"doc-scope/internal/store"
)

var chunkOptions = chunker.Options{MaxTokens: chunker.DefaultMaxTokens, Overlap: chunker.DefaultOverlap}

func main() {
	deps, err := app.Build(app.Options{Queue: true})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("parser worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeParse, func(ctx context.Context, task queue.Task) error {
			var payload queue.ParsePayload
			if err := task.Decode(&payload); err != nil {
				return err
			}
			return handleParse(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.HealthPort, "parser")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("parser service stopped", "err", err)
	}
}

func handleParse(ctx context.Context, deps app.Deps, payload queue.ParsePayload) error {
	log := deps.Log.With("document_id", payload.DocumentID, "file_name", payload.Filename, "page", payload.Page)

	opts := chunkOptions
	opts.Page = payload.Page
	chunks := chunker.ChunkText(payload.Content, opts)
	if len(chunks) == 0 {
		// Nothing to analyse; retrying would not help.
		log.Warn("document has no text, marking failed")
		return deps.Store.UpdateDocumentStatus(ctx, payload.DocumentID, store.StatusFailed)
	}

	storeChunks := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = store.Chunk{
			DocumentID: payload.DocumentID,
			Index:      c.Index,
			Text:       c.Text,
			TokenCount: c.TokenCount,
		}
	}
	saved, err := deps.Store.SaveChunks(ctx, payload.DocumentID, storeChunks)
	if err != nil {
		return err
	}

	chunkIDs := make([]uuid.UUID, len(saved))
	for i, c := range saved {
		chunkIDs[i] = c.ID
	}
	task, err := queue.NewTask(queue.TaskTypeAnalyze, queue.AnalyzePayload{
		DocumentID: payload.DocumentID,
		ChunkIDs:   chunkIDs,
	})
	if err != nil {
		return err
	}
	task.NotBefore = time.Now()
	if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
		return err
	}
	log.Info("document chunked", "chunks", len(saved), "page", chunks[0].Page)
	return nil
}
