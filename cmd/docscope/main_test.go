package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"doc-scope/internal/contextfilter"
	"doc-scope/internal/store"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func newMatcher() *contextfilter.Matcher {
	return contextfilter.New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestRunFilter(t *testing.T) {
	docs := []store.Document{
		{ID: uuid.New(), Filename: "RPA9 report.pdf", Page: 1, Status: store.StatusReady},
		{ID: uuid.New(), Filename: "RPA9 report.pdf", Page: 2, Status: store.StatusReady},
		{ID: uuid.New(), Filename: "misc.txt", Status: store.StatusReady},
	}
	st := new(store.MockStore)
	st.On("ListDocuments", mock.Anything).Return(docs, nil)

	var out bytes.Buffer
	err := run(context.Background(), []string{"filter", "-prompt", "Summarise rpa9 please"}, &out, st, newMatcher())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "project code: rpa9")
	assert.Contains(t, out.String(), `names: [" summarise"]`)
	assert.Contains(t, out.String(), "  RPA9 report.pdf\n")
	assert.Contains(t, out.String(), "1 files, 2 documents")
	assert.NotContains(t, out.String(), "misc.txt")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"filter", "-prompt", "nothing here"}, &out, st, newMatcher()))
	assert.Contains(t, out.String(), "no relevant files")
}

func TestRunDocuments(t *testing.T) {
	id := uuid.New()
	st := new(store.MockStore)
	st.On("ListDocuments", mock.Anything).Return([]store.Document{
		{ID: id, Filename: "a.pdf", Page: 3, Status: store.StatusFailed},
	}, nil).Once()

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"documents"}, &out, st, newMatcher()))
	assert.Equal(t, "failed     "+id.String()+"  a.pdf (page 3)\n", out.String())
}

func TestRunErrors(t *testing.T) {
	st := new(store.MockStore)
	st.On("ListDocuments", mock.Anything).Return(nil, errors.New("db down"))

	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), nil, &out, st, newMatcher()), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"bogus"}, &out, st, newMatcher()), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"filter"}, &out, st, newMatcher()), errUsage)
	assert.Error(t, run(context.Background(), []string{"filter", "-prompt", "cpa1"}, &out, st, newMatcher()))
	assert.Error(t, run(context.Background(), []string{"documents"}, &out, st, newMatcher()))
}
