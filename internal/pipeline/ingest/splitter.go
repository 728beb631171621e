package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"rag-indexer/internal/pipeline/common"
)

const (
	// DefaultMaxChunkSize 单个 passage 的字节上限（UTF-8）
	DefaultMaxChunkSize = 2000
	// tailMinChars 末尾缓冲区去空白后不超过该字符数时丢弃
	tailMinChars = 50
)

// 空行分段：一个或多个换行（中间可有空白）
var paragraphBreak = regexp.MustCompile(`\n\s*\n+`)

// Chunker 语义切片器：段落贪心装箱，超长段落退化为句子装箱；纯函数，无 I/O
type Chunker struct {
	maxChunkSize int
	overlap      int
}

// NewChunker 创建切片器。maxChunkSize<=0 使用默认值；overlap 为相邻 passage 的重叠字节数，0 表示不重叠
func NewChunker(maxChunkSize, overlap int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlap < 0 || overlap >= maxChunkSize {
		overlap = 0
	}
	return &Chunker{maxChunkSize: maxChunkSize, overlap: overlap}
}

// span 源文本中的字节区间
type span struct {
	text       string
	start, end int
}

// piece 切片中间结果；sentence 表示来自句子退化路径
type piece struct {
	text       string
	start, end int
	sentence   bool
}

// Chunk 将 text 切为有序 passage。空或全空白输入返回空切片
func (c *Chunker) Chunk(text, documentID string, metadata map[string]interface{}) []common.Chunk {
	if strings.TrimSpace(text) == "" {
		return []common.Chunk{}
	}

	var (
		pieces   []piece
		buf      strings.Builder
		bufStart int
		bufEnd   int
	)
	flush := func() {
		pieces = append(pieces, piece{text: strings.TrimSpace(buf.String()), start: bufStart, end: bufEnd})
		buf.Reset()
	}

	for _, para := range splitParagraphs(text) {
		if len(para.text) > c.maxChunkSize {
			if buf.Len() > 0 {
				flush()
			}
			pieces = append(pieces, c.packSentences(para)...)
			continue
		}

		if buf.Len() > 0 && buf.Len()+2+len(para.text) > c.maxChunkSize {
			flush()
		}
		if buf.Len() == 0 {
			bufStart = para.start
		} else {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para.text)
		bufEnd = para.end
	}

	if buf.Len() > 0 && utf8.RuneCountInString(strings.TrimSpace(buf.String())) > tailMinChars {
		flush()
	}

	return c.finalize(text, documentID, metadata, pieces)
}

// packSentences 超长段落按句子贪心装箱；无法再拆的单句原样输出（可能超过上限）
func (c *Chunker) packSentences(para span) []piece {
	var (
		out      []piece
		buf      strings.Builder
		bufStart int
		bufEnd   int
	)
	for _, s := range splitSentences(para.text) {
		if buf.Len() > 0 && buf.Len()+1+len(s.text) > c.maxChunkSize {
			out = append(out, piece{text: strings.TrimSpace(buf.String()), start: bufStart, end: bufEnd, sentence: true})
			buf.Reset()
		}
		if buf.Len() == 0 {
			bufStart = para.start + s.start
		} else {
			buf.WriteByte(' ')
		}
		buf.WriteString(s.text)
		bufEnd = para.start + s.end
	}
	if buf.Len() > 0 {
		out = append(out, piece{text: strings.TrimSpace(buf.String()), start: bufStart, end: bufEnd, sentence: true})
	}
	return out
}

// finalize 分配确定性 ID、字符偏移，并按需前置重叠文本
func (c *Chunker) finalize(text, documentID string, metadata map[string]interface{}, pieces []piece) []common.Chunk {
	chunks := make([]common.Chunk, 0, len(pieces))
	offsets := newRuneOffsets(text)
	for i, p := range pieces {
		body, from := p.text, p.start
		if c.overlap > 0 && i > 0 {
			sep := "\n\n"
			if p.sentence {
				sep = " "
			}
			// 重叠取自原文，偏移随之前移到重叠文本起点
			prev := pieces[i-1]
			if tail := overlapTail(text[prev.start:prev.end], c.overlap); tail != "" && len(tail)+len(sep)+len(body) <= c.maxChunkSize {
				body = tail + sep + body
				from = prev.end - len(tail)
			}
		}
		start := offsets.at(from)
		chunks = append(chunks, common.Chunk{
			ID:         common.ChunkID(documentID, i),
			DocumentID: documentID,
			Index:      i,
			Text:       body,
			CharStart:  start,
			CharEnd:    offsets.at(p.end),
			Metadata:   copyMetadata(metadata),
		})
	}
	return chunks
}

// splitParagraphs 按空行切段，返回去空白后的非空段落及其在原文中的字节区间
func splitParagraphs(text string) []span {
	var out []span
	prev := 0
	add := func(from, to int) {
		seg := text[from:to]
		trimmed := strings.TrimSpace(seg)
		if trimmed == "" {
			return
		}
		lead := len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
		out = append(out, span{text: trimmed, start: from + lead, end: from + lead + len(trimmed)})
	}
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		add(prev, loc[0])
		prev = loc[1]
	}
	add(prev, len(text))
	return out
}

// splitSentences 在句末标点（. ! ?）之后的空白处切句，空白本身不计入句子
func splitSentences(text string) []span {
	var out []span
	start := 0
	var prev rune
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && (prev == '.' || prev == '!' || prev == '?') {
			j := i
			for j < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += s2
			}
			out = append(out, span{text: text[start:i], start: start, end: i})
			start = j
			i = j
			prev = 0
			continue
		}
		prev = r
		i += size
	}
	if start < len(text) {
		out = append(out, span{text: text[start:], start: start, end: len(text)})
	}
	return out
}

// overlapTail 取 s 末尾不超过 n 字节的文本，从词边界开始
func overlapTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	tail := s[cut:]
	if idx := strings.IndexFunc(tail, unicode.IsSpace); idx >= 0 && cut > 0 && !isSpaceBefore(s, cut) {
		tail = tail[idx:]
	}
	return strings.TrimSpace(tail)
}

func isSpaceBefore(s string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r)
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// runeOffsets 字节偏移到字符偏移的增量换算
type runeOffsets struct {
	text     string
	lastByte int
	lastRune int
}

func newRuneOffsets(text string) *runeOffsets {
	return &runeOffsets{text: text}
}

func (r *runeOffsets) at(b int) int {
	if b < r.lastByte {
		r.lastByte, r.lastRune = 0, 0
	}
	r.lastRune += utf8.RuneCountInString(r.text[r.lastByte:b])
	r.lastByte = b
	return r.lastRune
}
