package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "rag-indexer/pkg/errors"
)

type fakeChat struct {
	got   []*schema.Message
	reply *schema.Message
	err   error
}

func (f *fakeChat) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.got = input
	return f.reply, f.err
}

func (f *fakeChat) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatGenerator_Generate(t *testing.T) {
	chat := &fakeChat{reply: &schema.Message{
		Role:    schema.Assistant,
		Content: "answer",
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		},
	}}
	g := NewChatGenerator(chat, "gpt-4o-mini")

	out, err := g.Generate(context.Background(), "be brief", "what?")
	require.NoError(t, err)
	assert.Equal(t, "answer", out.Text)
	assert.Equal(t, 12, out.PromptTokens)
	assert.Equal(t, 3, out.CompletionTokens)
	assert.Equal(t, 15, out.TotalTokens)

	require.Len(t, chat.got, 2)
	assert.Equal(t, schema.System, chat.got[0].Role)
	assert.Equal(t, "be brief", chat.got[0].Content)
	assert.Equal(t, schema.User, chat.got[1].Role)
	assert.Equal(t, "gpt-4o-mini", g.Model())
}

func TestChatGenerator_NoSystemPrompt(t *testing.T) {
	chat := &fakeChat{reply: &schema.Message{Role: schema.Assistant, Content: "ok"}}
	out, err := NewChatGenerator(chat, "m").Generate(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, out.TotalTokens)
	assert.Len(t, chat.got, 1)
}

func TestChatGenerator_ErrorIsExternal(t *testing.T) {
	chat := &fakeChat{err: errors.New("upstream 500")}
	_, err := NewChatGenerator(chat, "m").Generate(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExternalService, apperrors.KindOf(err))
	assert.Equal(t, "llm error: upstream 500", err.Error())
}

func TestUnavailable(t *testing.T) {
	g := Unavailable("gpt-4o-mini")
	_, err := g.Generate(context.Background(), "", "q")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExternalService, apperrors.KindOf(err))
	assert.Equal(t, "llm error: api key not configured", apperrors.MessageOf(err))
	assert.Equal(t, "gpt-4o-mini", g.Model())
}
