package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"rag-indexer/internal/model/llm"
	"rag-indexer/internal/pipeline/ingest"
	"rag-indexer/pkg/log"
)

// NoResultsAnswer 无检索结果时的固定回答，不调用 LLM
const NoResultsAnswer = "I couldn't find any relevant information to answer your question."

// DefaultSystemPrompt 未配置时使用
const DefaultSystemPrompt = "You are a helpful assistant that answers questions based only on the provided context. " +
	"If the context does not contain the answer, say so."

// Source 回答引用的 passage
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// Answer 生成结果
type Answer struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Sources  []Source        `json:"sources"`
	Usage    *llm.Completion `json:"-"`
}

// Generator 基于检索到的 passage 生成回答
type Generator struct {
	llm          llm.Generator
	systemPrompt string
	logger       *log.Logger
}

// NewGenerator 创建生成器
func NewGenerator(client llm.Generator, systemPrompt string, logger *log.Logger) *Generator {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Generator{llm: client, systemPrompt: systemPrompt, logger: logger.Component("generator")}
}

// Generate 用 docs 作为上下文回答 question；docs 为空时直接返回 NoResultsAnswer
func (g *Generator) Generate(ctx context.Context, question string, docs []*schema.Document) (*Answer, error) {
	sources := make([]Source, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, sourceOf(d))
	}
	if len(sources) == 0 {
		return &Answer{Question: question, Answer: NoResultsAnswer, Sources: sources}, nil
	}

	completion, err := g.llm.Generate(ctx, g.systemPrompt, BuildPrompt(question, sources))
	if err != nil {
		return nil, err
	}
	g.logger.InfoContext(ctx, "LLM 回答完成",
		"model", g.llm.Model(),
		"sources", len(sources),
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens,
		"total_tokens", completion.TotalTokens,
	)
	return &Answer{Question: question, Answer: completion.Text, Sources: sources, Usage: completion}, nil
}

// BuildContext 每个来源一段 "[Source i: filename]\n<text>"，空行分隔
func BuildContext(sources []Source) string {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, s.Filename, s.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt 组装发给 LLM 的用户消息
func BuildPrompt(question string, sources []Source) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer the question based on the context.", BuildContext(sources), question)
}

func sourceOf(d *schema.Document) Source {
	s := Source{ChunkID: d.ID, Text: d.Content, Score: d.Score()}
	if v, ok := d.MetaData[ingest.MetaDocumentID].(string); ok {
		s.DocumentID = v
	}
	if v, ok := d.MetaData[ingest.MetaFilename].(string); ok {
		s.Filename = v
	}
	if v, ok := d.MetaData[ingest.MetaChunkIndex].(int); ok {
		s.ChunkIndex = v
	}
	return s
}
