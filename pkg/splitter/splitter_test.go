package splitter

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

// wordCount counts whitespace separated words as tokens.
type wordCount struct{}

func (wordCount) Count(text string) int { return len(strings.Fields(text)) }

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: nil,
		},
		{
			name: "multiple sentences",
			text: "Hello world. This is a test! How are you?",
			want: []string{"Hello world.", "This is a test!", "How are you?"},
		},
		{
			name: "blank lines end sentences",
			text: "First sentence\n\nSecond sentence.",
			want: []string{"First sentence", "Second sentence."},
		},
		{
			name: "multi-line sentence",
			text: "This is a long\nsentence that spans\nmultiple lines.",
			want: []string{"This is a long sentence that spans multiple lines."},
		},
		{
			name: "text with table",
			text: "Introduction text.\nHeader1 | Header2\n------- | -------\nValue1  | Value2\nConclusion text.",
			want: []string{
				"Introduction text.",
				"Header1 | Header2\n------- | -------\nValue1  | Value2",
				"Conclusion text.",
			},
		},
		{
			name: "table without delimiter",
			text: "Header1 | Header2\nValue1  | Value2",
			want: []string{"Header1 | Header2", "Value1  | Value2"},
		},
		{
			name: "numbered items stay together",
			text: "Today we discuss three points. 1. First item 2. Second item 3. Third item. Done!",
			want: []string{
				"Today we discuss three points.",
				"1. First item 2. Second item 3. Third item.",
				"Done!",
			},
		},
		{
			name: "closing quotes stay with the sentence",
			text: `She said "stop." Then she left.`,
			want: []string{`She said "stop."`, "Then she left."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Sentences() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestToken_Split(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      []string
	}{
		{
			name:      "fits in one chunk",
			text:      "First sentence. Second sentence.",
			maxTokens: 10,
			want:      []string{"First sentence. Second sentence."},
		},
		{
			name:      "split at sentence boundaries",
			text:      "Alice works at Acme Corp.\n\nAcme Corp builds rockets.\n\nAlice joined in 2019.",
			maxTokens: 5,
			want:      []string{"Alice works at Acme Corp.", "Acme Corp builds rockets.", "Alice joined in 2019."},
		},
		{
			name:      "long sentence is cut at words",
			text:      "one two three four five six seven.",
			maxTokens: 3,
			want:      []string{"one two three", "four five six", "seven."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewToken(tt.maxTokens, wordCount{})
			chunks, err := s.Split(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			got := make([]string, len(chunks))
			for i, c := range chunks {
				if c.Index != i {
					t.Fatalf("chunk %d has index %d", i, c.Index)
				}
				if c.TokenCount > tt.maxTokens {
					t.Fatalf("chunk %d has %d tokens, limit %d", i, c.TokenCount, tt.maxTokens)
				}
				got[i] = c.Text
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Split() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSplit_EmptyText(t *testing.T) {
	r, err := NewRecursive(RecursiveParams{})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}
	if _, err := r.Split(context.Background(), " \n "); err == nil {
		t.Fatal("expected an error for empty text")
	}
	if _, err := NewToken(10, wordCount{}).Split(context.Background(), ""); err == nil {
		t.Fatal("expected an error for empty text")
	}
}

func TestRecursive_Split(t *testing.T) {
	r, err := NewRecursive(RecursiveParams{ChunkSize: 40, ChunkOverlap: 0, Tokens: wordCount{}})
	if err != nil {
		t.Fatalf("NewRecursive: %v", err)
	}
	text := "Alice works at Acme Corp.\n\nAcme Corp builds rockets in Texas.\n\nAlice joined in 2019."
	chunks, err := r.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if c.CharCount > 40 {
			t.Fatalf("chunk %d exceeds the size limit: %q", i, c.Text)
		}
		if c.TokenCount != len(strings.Fields(c.Text)) {
			t.Fatalf("chunk %d token count %d", i, c.TokenCount)
		}
	}
	if !strings.Contains(chunks[0].Text, "Alice works at Acme Corp.") {
		t.Fatalf("unexpected first chunk %q", chunks[0].Text)
	}
}

func TestNewRecursive_RejectsOverlapAboveSize(t *testing.T) {
	if _, err := NewRecursive(RecursiveParams{ChunkSize: 100, ChunkOverlap: 100}); err == nil {
		t.Fatal("expected an error")
	}
}
