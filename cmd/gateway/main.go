package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"doc-scope/internal/app"
	"doc-scope/internal/httputil"
	"doc-scope/internal/queue"
	"doc-scope/internal/store"
)

const (
	enqueueAttempts = 3
	enqueueBackoff  = 200 * time.Millisecond
)

// page is the extracted text of one ingestion unit. Number is 0 for
// sources without pages.
type page struct {
	Number int
	Text   string
}

type uploadedDocument struct {
	DocumentID uuid.UUID            `json:"document_id"`
	Page       int                  `json:"page,omitempty"`
	Status     store.DocumentStatus `json:"status"`
}

type contextFilterRequest struct {
	Prompt string `json:"prompt" validate:"required,max=2000"`
}

func main() {
	deps, err := app.Build(app.Options{Queue: true})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Group(func(r chi.Router) {
		r.Use(httputil.WithTimeout(60 * time.Second))
		r.Post("/api/documents/upload", uploadHandler(deps))
		r.Get("/api/documents", listDocumentsHandler(deps))
		r.Get("/api/documents/{id}/summary", summaryHandler(deps))
		r.Post("/api/context-filter", contextFilterHandler(deps))
	})
	r.Post("/api/query", proxyHandler(deps, "/api/query"))
	r.Post("/api/query/stream", proxyHandler(deps, "/api/query/stream"))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		contentType, ok := detectContentType(header.Header.Get("Content-Type"), header.Filename)
		if !ok {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		pages := extractPages(deps.Log, header.Filename, contentType, content)
		if len(pages) == 0 {
			httputil.Fail(deps.Log, w, "file contains no text", nil, http.StatusBadRequest)
			return
		}

		uploaded, err := ingestPages(ctx, deps, header.Filename, pages)
		if err != nil {
			if len(uploaded) == 0 {
				httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
				return
			}
			// Pages before the failed one are already queued and will be processed.
			deps.Log.Error("upload incomplete", "file_name", header.Filename, "documents", len(uploaded), "err", err)
			httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
				"error":     "upload incomplete; please retry",
				"file_name": header.Filename,
				"documents": uploaded,
			})
			return
		}

		deps.Log.Info("document uploaded", "file_name", header.Filename, "documents", len(uploaded))
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"file_name": header.Filename,
			"documents": uploaded,
		})
	}
}

// ingestPages creates and queues one document per page. It stops at the
// first failure; the returned documents are those created so far, with the
// failed page last and marked failed when it was persisted.
func ingestPages(ctx context.Context, deps app.Deps, filename string, pages []page) ([]uploadedDocument, error) {
	uploaded := make([]uploadedDocument, 0, len(pages))
	for _, p := range pages {
		doc, err := deps.Store.CreateDocument(ctx, filename, p.Number)
		if err != nil {
			return uploaded, fmt.Errorf("failed to persist document: %w", err)
		}
		if err := enqueueParse(ctx, deps, doc, p); err != nil {
			markFailed(ctx, deps, doc.ID)
			uploaded = append(uploaded, uploadedDocument{DocumentID: doc.ID, Page: doc.Page, Status: store.StatusFailed})
			return uploaded, fmt.Errorf("failed to enqueue document; please retry: %w", err)
		}
		uploaded = append(uploaded, uploadedDocument{DocumentID: doc.ID, Page: doc.Page, Status: doc.Status})
	}
	return uploaded, nil
}

func enqueueParse(ctx context.Context, deps app.Deps, doc store.Document, p page) error {
	task, err := queue.NewTask(queue.TaskTypeParse, queue.ParsePayload{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Page:       p.Number,
		Content:    p.Text,
	})
	if err != nil {
		return err
	}
	return queue.EnqueueWithRetry(ctx, deps.Queue, task, enqueueAttempts, enqueueBackoff)
}

func markFailed(ctx context.Context, deps app.Deps, docID uuid.UUID) {
	if err := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); err != nil {
		deps.Log.Error("failed to mark document failed", "document_id", docID, "err", err)
	}
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments(r.Context())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list documents", err, http.StatusInternalServerError)
			return
		}
		if docs == nil {
			docs = []store.Document{}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}

func summaryHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
			return
		}
		sum, err := deps.Store.GetSummary(r.Context(), docID)
		if errors.Is(err, store.ErrSummaryNotFound) {
			httputil.Fail(deps.Log.With("document_id", docID), w, "summary not ready", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log.With("document_id", docID), w, "failed to load summary", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"summary":     sum.Summary,
			"key_points":  sum.KeyPoints,
			"document_id": docID,
		})
	}
}

func contextFilterHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contextFilterRequest
		if !httputil.DecodeAndValidate(deps.Log, w, r, &req) {
			return
		}
		res, err := deps.Filter.Filter(r.Context(), req.Prompt, deps.Store)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to filter documents", err, http.StatusBadGateway)
			return
		}
		if res.DocumentIDs == nil {
			res.DocumentIDs = []uuid.UUID{}
			res.FileNames = []string{}
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

// proxyHandler forwards a request body to the query service and streams the
// response back, flushing as it goes so server-sent events pass through.
func proxyHandler(deps app.Deps, path string) http.HandlerFunc {
	target := strings.TrimRight(deps.Config.QueryServiceURL, "/") + path
	client := &http.Client{Timeout: 5 * time.Minute}

	return func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, r.Body)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create request", err, http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if accept := r.Header.Get("Accept"); accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := client.Do(req)
		if err != nil {
			httputil.Fail(deps.Log, w, "query service unavailable", err, http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.StatusCode)
		if err := copyFlushing(w, resp.Body); err != nil {
			deps.Log.Error("failed to copy response", "err", err)
		}
	}
}

func copyFlushing(w http.ResponseWriter, body io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func detectContentType(declared, filename string) (string, bool) {
	contentType, _, _ := strings.Cut(declared, ";")
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".txt":
			contentType = "text/plain"
		case ".pdf":
			contentType = "application/pdf"
		default:
			return "", false
		}
	}
	switch contentType {
	case "text/plain", "application/pdf":
		return contentType, true
	default:
		return "", false
	}
}

// extractPages returns one page per non-empty PDF page, or a single page 0
// for text files. A PDF that cannot be parsed is treated as text.
func extractPages(log *slog.Logger, filename, contentType string, content []byte) []page {
	if contentType == "application/pdf" {
		pages, err := extractPDF(content)
		if err == nil {
			return pages
		}
		log.Warn("pdf extraction failed, using raw bytes", "err", err, "filename", filename)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil
	}
	return []page{{Number: 0, Text: text}}
}

func extractPDF(content []byte) ([]page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var pages []page
	for num := 1; num <= reader.NumPage(); num++ {
		p := reader.Page(num)
		if p.V.IsNull() || p.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, page{Number: num, Text: text})
		}
	}
	return pages, nil
}
