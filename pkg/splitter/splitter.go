package splitter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultEncoding is the tiktoken encoding used for token counts.
const DefaultEncoding = "o200k_base"

// Tokenizer counts the tokens of a text.
type Tokenizer interface {
	Count(text string) int
}

// Tiktoken counts tokens with a tiktoken encoding. The encoding is loaded
// on first use.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	err      error
}

func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{encoding: encoding}
}

func (t *Tiktoken) load() (*tiktoken.Tiktoken, error) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.GetEncoding(t.encoding)
	})
	return t.enc, t.err
}

// Count falls back to a rough estimate of four characters per token when
// the encoding cannot be loaded.
func (t *Tiktoken) Count(text string) int {
	enc, err := t.load()
	if err != nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func toChunks(texts []string, tokens Tokenizer) []common.Chunk {
	chunks := make([]common.Chunk, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		c := common.Chunk{
			Index:     len(chunks),
			Text:      t,
			CharCount: utf8.RuneCountInString(t),
		}
		if tokens != nil {
			c.TokenCount = tokens.Count(t)
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// Recursive splits on paragraph, line, word and character boundaries until
// every chunk fits ChunkSize characters, overlapping neighbours by
// ChunkOverlap characters.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
	tokens   Tokenizer
}

type RecursiveParams struct {
	ChunkSize    int
	ChunkOverlap int
	// Tokens fills Chunk.TokenCount when set.
	Tokens Tokenizer
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

func NewRecursive(p RecursiveParams) (*Recursive, error) {
	if p.ChunkSize <= 0 {
		p.ChunkSize = defaultChunkSize
	}
	if p.ChunkOverlap < 0 {
		p.ChunkOverlap = 0
	}
	if p.ChunkOverlap >= p.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", p.ChunkOverlap, p.ChunkSize)
	}
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(p.ChunkSize),
			textsplitter.WithChunkOverlap(p.ChunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
		tokens: p.Tokens,
	}, nil
}

func (r *Recursive) Split(ctx context.Context, text string) ([]common.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is empty")
	}
	parts, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	return toChunks(parts, r.tokens), nil
}

// Token groups whole sentences into chunks of at most MaxTokens tokens. A
// sentence longer than MaxTokens is cut at word boundaries.
type Token struct {
	maxTokens int
	tokens    Tokenizer
}

const defaultMaxTokens = 500

func NewToken(maxTokens int, tokens Tokenizer) *Token {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if tokens == nil {
		tokens = NewTiktoken(DefaultEncoding)
	}
	return &Token{maxTokens: maxTokens, tokens: tokens}
}

func (t *Token) Split(ctx context.Context, text string) ([]common.Chunk, error) {
	sentences := Sentences(strings.TrimSpace(text))
	if len(sentences) == 0 {
		return nil, fmt.Errorf("text is empty")
	}

	var parts []string
	var current []string
	currentTokens := 0
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, strings.Join(current, " "))
		}
		current = current[:0]
		currentTokens = 0
	}

	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := t.tokens.Count(sentence)
		if n > t.maxTokens {
			flush()
			parts = append(parts, t.cutWords(sentence)...)
			continue
		}
		if len(current) > 0 && currentTokens+n > t.maxTokens {
			flush()
		}
		current = append(current, sentence)
		currentTokens += n
	}
	flush()

	return toChunks(parts, t.tokens), nil
}

func (t *Token) cutWords(sentence string) []string {
	var out []string
	var current []string
	for _, w := range strings.Fields(sentence) {
		candidate := append(current, w)
		if len(current) > 0 && t.tokens.Count(strings.Join(candidate, " ")) > t.maxTokens {
			out = append(out, strings.Join(current, " "))
			current = []string{w}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}
