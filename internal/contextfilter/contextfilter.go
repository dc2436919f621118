// Package contextfilter guesses which ingested documents are relevant to a
// prompt so retrieval can be scoped to them.
//
// A file is relevant when its name contains the project code mentioned in
// the prompt, when it belongs to a known document space whose keywords occur
// in the prompt, or when it contains a capitalised phrase from the prompt.
// Files are judged once by name; every document (page) of a relevant file is
// returned.
package contextfilter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"doc-scope/internal/metrics"
	"doc-scope/internal/store"
)

var (
	projectCodeRe = regexp.MustCompile(`(cpa|rpa|opa)\d{1,3}`)
	// Runs of capitalised words: important names, or simply sentence starts.
	// Letters after the capital may be non-ASCII ("Müller").
	capitalizedRe = regexp.MustCompile(`[A-Z]+[\p{L}\p{N}_]*(?:\s*[A-Z]+[\p{L}\p{N}_]*)*`)
)

// organisationName matches nearly every space and is dropped from candidate names.
const organisationName = " sofics"

// Lister lists every ingested document.
type Lister interface {
	ListDocuments(ctx context.Context) ([]store.Document, error)
}

// Result is the set of documents to scope retrieval to.
type Result struct {
	DocumentIDs []uuid.UUID `json:"docs_ids"`
	FileNames   []string    `json:"file_names"`
}

// Matcher applies the keyword heuristic.
type Matcher struct {
	log    *slog.Logger
	spaces []Space
}

// New returns a Matcher over spaces; nil spaces selects DefaultSpaces.
func New(log *slog.Logger, spaces []Space) *Matcher {
	if spaces == nil {
		spaces = DefaultSpaces()
	}
	normalized := make([]Space, len(spaces))
	for i, sp := range spaces {
		normalized[i] = Space{
			Name:     strings.ToLower(sp.Name),
			Keywords: lo.Map(sp.Keywords, func(k string, _ int) string { return strings.ToLower(k) }),
		}
	}
	return &Matcher{log: log, spaces: normalized}
}

// ProjectCode returns the first project code in prompt, lowercased, or "".
func ProjectCode(prompt string) string {
	return projectCodeRe.FindString(strings.ToLower(prompt))
}

// CandidateNames returns the capitalised phrases of prompt, lowercased and
// prefixed with a space so that short names do not match inside words
// ("IT" would otherwise hit "feasibility").
func CandidateNames(prompt string) []string {
	names := lo.Map(capitalizedRe.FindAllString(prompt, -1), func(name string, _ int) string {
		return " " + strings.ToLower(name)
	})
	return lo.Without(names, organisationName)
}

// Filter lists the documents and returns those relevant to prompt, in listing
// order. Lister errors are returned wrapped.
func (m *Matcher) Filter(ctx context.Context, prompt string, lister Lister) (Result, error) {
	docs, err := lister.ListDocuments(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list documents: %w", err)
	}

	lowered := strings.ToLower(prompt)
	code := ProjectCode(prompt)
	names := CandidateNames(prompt)

	var res Result
	relevant := make(map[string]bool)
	for _, doc := range docs {
		fileName := doc.Filename
		isRelevant, checked := relevant[fileName]
		if !checked {
			isRelevant = m.fileRelevant(strings.ToLower(fileName), lowered, code, names)
			relevant[fileName] = isRelevant
			if isRelevant {
				res.FileNames = append(res.FileNames, fileName)
			}
		}
		if isRelevant {
			res.DocumentIDs = append(res.DocumentIDs, doc.ID)
		}
	}

	metrics.ObserveContextFilter(len(res.DocumentIDs))
	if m.log != nil {
		m.log.Info("context filter",
			"relevant_files", res.FileNames,
			"document_count", len(res.DocumentIDs),
			"project_code", code,
		)
	}
	return res, nil
}

func (m *Matcher) fileRelevant(fileName, prompt, code string, names []string) bool {
	if code != "" && strings.Contains(fileName, code) {
		return true
	}
	for _, sp := range m.spaces {
		if !strings.Contains(fileName, sp.Name) {
			continue
		}
		if lo.SomeBy(sp.Keywords, func(k string) bool { return strings.Contains(prompt, k) }) {
			return true
		}
	}
	return lo.SomeBy(names, func(name string) bool { return strings.Contains(fileName, name) })
}
