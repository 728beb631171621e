package app

import (
	"context"
	"strings"
	"unicode/utf8"

	einoretriever "github.com/cloudwego/eino/components/retriever"

	"rag-indexer/internal/pipeline/query"
	"rag-indexer/internal/ratelimit"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/log"
)

// 请求边界
const (
	MaxQueryChars    = 1000
	MaxQuestionChars = 2000
	MaxAskTopK       = 20
	DefaultAskTopK   = 5
)

// SearchRequest 语义检索请求；TopK 为 0 / Threshold 为 nil 时取默认值
type SearchRequest struct {
	Query     string   `json:"query"`
	SessionID string   `json:"session_id"`
	TopK      int      `json:"top_k"`
	Threshold *float64 `json:"score_threshold"`
}

// SearchResponse 检索结果
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []query.Hit `json:"results"`
	Total   int         `json:"total"`
}

// SearchService 会话内语义检索
type SearchService struct {
	retriever *query.Retriever
	limiter   ratelimit.Limiter
	topK      int
	threshold float64
}

// NewSearchService topK / threshold 为请求未指定时的默认值
func NewSearchService(retriever *query.Retriever, limiter ratelimit.Limiter, topK int, threshold float64) *SearchService {
	if topK <= 0 {
		topK = query.DefaultTopK
	}
	if threshold <= 0 {
		threshold = query.DefaultThreshold
	}
	return &SearchService{retriever: retriever, limiter: limiter, topK: topK, threshold: threshold}
}

// Search 校验请求、限流并检索
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := ValidateSessionID(req.SessionID); err != nil {
		return nil, err
	}
	if err := checkRate(ctx, s.limiter, "search:"+req.SessionID); err != nil {
		return nil, err
	}
	if err := validateText("query", req.Query, MaxQueryChars); err != nil {
		return nil, err
	}
	topK, err := resolveTopK(req.TopK, s.topK, query.MaxTopK)
	if err != nil {
		return nil, err
	}
	threshold, err := resolveThreshold(req.Threshold, s.threshold)
	if err != nil {
		return nil, err
	}

	hits, err := s.retriever.Search(ctx, query.Request{
		Query:     req.Query,
		SessionID: req.SessionID,
		TopK:      topK,
		Threshold: &threshold,
	})
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Query: req.Query, Results: hits, Total: len(hits)}, nil
}

// AskRequest 问答请求
type AskRequest struct {
	Question  string   `json:"question"`
	SessionID string   `json:"session_id"`
	TopK      int      `json:"top_k"`
	Threshold *float64 `json:"score_threshold"`
}

// AskService 检索增强问答
type AskService struct {
	retriever einoretriever.Retriever
	generator *query.Generator
	limiter   ratelimit.Limiter
	topK      int
	threshold float64
	logger    *log.Logger
}

// NewAskService 创建问答服务
func NewAskService(retriever einoretriever.Retriever, generator *query.Generator, limiter ratelimit.Limiter, topK int, threshold float64, logger *log.Logger) *AskService {
	if topK <= 0 {
		topK = DefaultAskTopK
	}
	if threshold <= 0 {
		threshold = query.DefaultThreshold
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &AskService{
		retriever: retriever,
		generator: generator,
		limiter:   limiter,
		topK:      topK,
		threshold: threshold,
		logger:    logger.Component("ask"),
	}
}

// Ask 检索相关 passage 并生成回答；无结果时不调用 LLM
func (s *AskService) Ask(ctx context.Context, req AskRequest) (*query.Answer, error) {
	if err := ValidateSessionID(req.SessionID); err != nil {
		return nil, err
	}
	if err := checkRate(ctx, s.limiter, "query:"+req.SessionID); err != nil {
		return nil, err
	}
	if err := validateText("question", req.Question, MaxQuestionChars); err != nil {
		return nil, err
	}
	topK, err := resolveTopK(req.TopK, s.topK, MaxAskTopK)
	if err != nil {
		return nil, err
	}
	threshold, err := resolveThreshold(req.Threshold, s.threshold)
	if err != nil {
		return nil, err
	}

	docs, err := s.retriever.Retrieve(ctx, req.Question,
		query.WithSession(req.SessionID),
		einoretriever.WithTopK(topK),
		einoretriever.WithScoreThreshold(threshold),
	)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "问答检索完成", "session_id", req.SessionID, "sources", len(docs))
	return s.generator.Generate(ctx, req.Question, docs)
}

func validateText(field, text string, max int) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.Validation(field + " cannot be empty")
	}
	if utf8.RuneCountInString(text) > max {
		return apperrors.Validation(field+" is too long", map[string]any{"max_chars": max})
	}
	return nil
}

func resolveTopK(v, def, max int) (int, error) {
	if v == 0 {
		return def, nil
	}
	if v < 1 || v > max {
		return 0, apperrors.Validation("top_k out of range", map[string]any{"min": 1, "max": max})
	}
	return v, nil
}

func resolveThreshold(v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 1 {
		return 0, apperrors.Validation("score_threshold must be between 0 and 1")
	}
	return *v, nil
}
