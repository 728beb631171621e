package query

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-indexer/internal/model/llm"
	"rag-indexer/internal/pipeline/ingest"
	apperrors "rag-indexer/pkg/errors"
)

type recordingLLM struct {
	system, prompt string
	calls          int
	err            error
}

func (r *recordingLLM) Generate(ctx context.Context, system, prompt string) (*llm.Completion, error) {
	r.calls++
	r.system, r.prompt = system, prompt
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Completion{Text: "Prompt injection hides instructions in data.", PromptTokens: 40, CompletionTokens: 8, TotalTokens: 48}, nil
}

func (r *recordingLLM) Model() string { return "test-model" }

func passage(id, filename, text string, score float64) *schema.Document {
	d := &schema.Document{
		ID:      id,
		Content: text,
		MetaData: map[string]any{
			ingest.MetaDocumentID: "doc-" + id,
			ingest.MetaFilename:   filename,
			ingest.MetaChunkIndex: 2,
		},
	}
	return d.WithScore(score)
}

func TestGenerator_NoSources(t *testing.T) {
	client := &recordingLLM{}
	ans, err := NewGenerator(client, "", nil).Generate(context.Background(), "What is RAG?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, ans.Answer)
	assert.Equal(t, "What is RAG?", ans.Question)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, 0, client.calls)
}

func TestGenerator_PromptAndSources(t *testing.T) {
	client := &recordingLLM{}
	docs := []*schema.Document{
		passage("c1", "injection.md", "Attackers embed instructions in retrieved text.", 0.91),
		passage("c2", "defenses.txt", "Separate instructions from data.", 0.74),
	}
	ans, err := NewGenerator(client, "system rules", nil).Generate(context.Background(), "What is prompt injection?", docs)
	require.NoError(t, err)

	assert.Equal(t, "system rules", client.system)
	assert.Equal(t, "Context:\n"+
		"[Source 1: injection.md]\nAttackers embed instructions in retrieved text.\n\n"+
		"[Source 2: defenses.txt]\nSeparate instructions from data.\n\n"+
		"Question: What is prompt injection?\n\n"+
		"Answer the question based on the context.", client.prompt)

	assert.Equal(t, "Prompt injection hides instructions in data.", ans.Answer)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, Source{
		DocumentID: "doc-c1",
		Filename:   "injection.md",
		ChunkID:    "c1",
		ChunkIndex: 2,
		Score:      0.91,
		Text:       "Attackers embed instructions in retrieved text.",
	}, ans.Sources[0])
	assert.Equal(t, 48, ans.Usage.TotalTokens)
}

func TestGenerator_DefaultSystemPrompt(t *testing.T) {
	client := &recordingLLM{}
	_, err := NewGenerator(client, "", nil).Generate(context.Background(), "q", []*schema.Document{passage("c1", "a.txt", "text", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPrompt, client.system)
}

func TestGenerator_LLMFailure(t *testing.T) {
	client := &recordingLLM{err: apperrors.External(llm.ServiceName, errors.New("503"))}
	_, err := NewGenerator(client, "", nil).Generate(context.Background(), "q", []*schema.Document{passage("c1", "a.txt", "text", 0.5)})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExternalService, apperrors.KindOf(err))
}
