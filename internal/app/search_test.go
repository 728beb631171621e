package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-indexer/internal/pipeline/query"
	apperrors "rag-indexer/pkg/errors"
)

func ptr(v float64) *float64 { return &v }

func TestSearchService_SessionIsolation(t *testing.T) {
	f := newAppFixture(t, nil)
	own := f.upload(t, sessionA, text("a"))
	f.upload(t, sessionB, text("b"))

	resp, err := f.search.Search(context.Background(), SearchRequest{Query: "aaa", SessionID: sessionA})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, own.Document.ID, resp.Results[0].DocumentID)
	assert.Equal(t, "aaa", resp.Query)
}

func TestSearchService_Validation(t *testing.T) {
	f := newAppFixture(t, nil)
	ctx := context.Background()
	cases := []SearchRequest{
		{Query: "q", SessionID: "bad"},
		{Query: "  ", SessionID: sessionA},
		{Query: strings.Repeat("x", MaxQueryChars+1), SessionID: sessionA},
		{Query: "q", SessionID: sessionA, TopK: -1},
		{Query: "q", SessionID: sessionA, TopK: query.MaxTopK + 1},
		{Query: "q", SessionID: sessionA, Threshold: ptr(1.5)},
		{Query: "q", SessionID: sessionA, Threshold: ptr(-0.1)},
	}
	for i, req := range cases {
		_, err := f.search.Search(ctx, req)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), "case %d", i)
	}
	assert.Zero(t, f.provider.calls.Load())
}

func TestSearchService_TopKAndThreshold(t *testing.T) {
	f := newAppFixture(t, nil)
	f.upload(t, sessionA, text("a", "b", "c"))

	resp, err := f.search.Search(context.Background(), SearchRequest{Query: "q", SessionID: sessionA, TopK: 2, Threshold: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestAskService_NoResults(t *testing.T) {
	f := newAppFixture(t, nil)

	answer, err := f.ask.Ask(context.Background(), AskRequest{Question: "what is injection?", SessionID: sessionA})
	require.NoError(t, err)
	assert.Equal(t, query.NoResultsAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, f.llm.prompts)
}

func TestAskService_Generates(t *testing.T) {
	f := newAppFixture(t, nil)
	doc := f.upload(t, sessionA, text("a"))

	answer, err := f.ask.Ask(context.Background(), AskRequest{Question: "what is a?", SessionID: sessionA})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, doc.Document.ID, answer.Sources[0].DocumentID)
	assert.Equal(t, "notes.txt", answer.Sources[0].Filename)
	require.Len(t, f.llm.prompts, 1)
	assert.Contains(t, f.llm.prompts[0], "[Source 1: notes.txt]")
	assert.Contains(t, f.llm.prompts[0], "Question: what is a?")
}

func TestAskService_Validation(t *testing.T) {
	f := newAppFixture(t, nil)
	ctx := context.Background()

	_, err := f.ask.Ask(ctx, AskRequest{Question: "q", SessionID: sessionA, TopK: MaxAskTopK + 1})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.ask.Ask(ctx, AskRequest{Question: strings.Repeat("x", MaxQuestionChars+1), SessionID: sessionA})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.ask.Ask(ctx, AskRequest{Question: "", SessionID: sessionA})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
