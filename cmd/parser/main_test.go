package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"doc-scope/internal/app"
	"doc-scope/internal/queue"
	"doc-scope/internal/store"
)

func newTestDeps(st store.Store, q queue.Queue) app.Deps {
	return app.Deps{
		Store: st,
		Queue: q,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func analyzeTaskFor(docID uuid.UUID, chunks int) any {
	return mock.MatchedBy(func(task queue.Task) bool {
		var p queue.AnalyzePayload
		if task.Type != queue.TaskTypeAnalyze || task.Decode(&p) != nil {
			return false
		}
		return p.DocumentID == docID && len(p.ChunkIDs) == chunks
	})
}

func TestHandleParse(t *testing.T) {
	validDocID := uuid.New()

	tests := []struct {
		name    string
		payload queue.ParsePayload
		setup   func(*store.MockStore, *queue.MockQueue)
		wantErr bool
	}{
		{
			name: "successful parse with small text",
			payload: queue.ParsePayload{
				DocumentID: validDocID,
				Filename:   "test.txt",
				Content:    "This is a short test document.",
			},
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("SaveChunks", mock.Anything, validDocID, mock.MatchedBy(func(chunks []store.Chunk) bool {
					return len(chunks) == 1 && chunks[0].DocumentID == validDocID && chunks[0].TokenCount == 6
				})).Return([]store.Chunk{{ID: uuid.New(), DocumentID: validDocID}}, nil).Once()
				q.On("Enqueue", mock.Anything, analyzeTaskFor(validDocID, 1)).Return(nil).Once()
			},
		},
		{
			name: "pdf page with long text creates multiple chunks",
			payload: queue.ParsePayload{
				DocumentID: validDocID,
				Filename:   "long.pdf",
				Page:       4,
				Content:    strings.Repeat("word ", 1000),
			},
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("SaveChunks", mock.Anything, validDocID, mock.MatchedBy(func(chunks []store.Chunk) bool {
					return len(chunks) == 3
				})).Return([]store.Chunk{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}, nil).Once()
				q.On("Enqueue", mock.Anything, analyzeTaskFor(validDocID, 3)).Return(nil).Once()
			},
		},
		{
			name: "empty content marks document failed",
			payload: queue.ParsePayload{
				DocumentID: validDocID,
				Filename:   "empty.txt",
				Content:    "   ",
			},
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("UpdateDocumentStatus", mock.Anything, validDocID, store.StatusFailed).Return(nil).Once()
			},
		},
		{
			name: "SaveChunks failure",
			payload: queue.ParsePayload{
				DocumentID: validDocID,
				Filename:   "test.txt",
				Content:    "Some content",
			},
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("SaveChunks", mock.Anything, validDocID, mock.Anything).
					Return(nil, errors.New("database error")).Once()
			},
			wantErr: true,
		},
		{
			name: "Enqueue failure",
			payload: queue.ParsePayload{
				DocumentID: validDocID,
				Filename:   "test.txt",
				Content:    "Some content",
			},
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("SaveChunks", mock.Anything, validDocID, mock.Anything).
					Return([]store.Chunk{{ID: uuid.New()}}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue error")).Times(3)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			mockQueue := new(queue.MockQueue)
			tt.setup(mockStore, mockQueue)

			err := handleParse(context.Background(), newTestDeps(mockStore, mockQueue), tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			mockStore.AssertExpectations(t)
			mockQueue.AssertExpectations(t)
		})
	}
}
