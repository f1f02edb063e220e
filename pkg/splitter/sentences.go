package splitter

import (
	"regexp"
	"strings"
	"unicode"
)

var tableDelimiter = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Contains(trimmed, "|")
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// sentenceCollector accumulates sentence fragments across line breaks and
// emits a sentence whenever terminal punctuation closes one.
type sentenceCollector struct {
	out     []string
	current strings.Builder
}

func (c *sentenceCollector) flush() {
	if s := strings.TrimSpace(c.current.String()); s != "" {
		c.out = append(c.out, s)
	}
	c.current.Reset()
}

func (c *sentenceCollector) addLine(line string) {
	for _, fragment := range splitLine(line) {
		if c.current.Len() > 0 {
			c.current.WriteString(" ")
		}
		c.current.WriteString(fragment)
		if endsSentence(fragment) {
			c.flush()
		}
	}
}

// Sentences splits text into sentences. Blank lines end a sentence.
// Markdown tables (a header row followed by a delimiter row) are kept as a
// single unit; other lines containing pipes become units of their own.
func Sentences(text string) []string {
	lines := strings.Split(text, "\n")
	c := &sentenceCollector{}
	inTable := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inTable {
			if trimmed != "" && isTableRow(line) {
				c.current.WriteString("\n")
				c.current.WriteString(line)
				continue
			}
			inTable = false
			c.flush()
			if trimmed != "" {
				c.addLine(trimmed)
			}
			continue
		}

		if isTableRow(line) {
			c.flush()
			if i+1 < len(lines) && tableDelimiter.MatchString(strings.TrimSpace(lines[i+1])) {
				inTable = true
				c.current.WriteString(line)
				continue
			}
			c.out = append(c.out, trimmed)
			continue
		}

		if trimmed == "" {
			c.flush()
			continue
		}
		c.addLine(trimmed)
	}
	c.flush()
	return c.out
}

// splitLine cuts a single line after terminal punctuation. A period
// directly after a digit and before a space ("1. Item") does not end a
// sentence. Runs of punctuation and closing quotes or brackets stay with
// the sentence they close.
func splitLine(line string) []string {
	var out []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		ch := line[i]
		current.WriteByte(ch)
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}

		j := i + 1
		for j < len(line) && strings.IndexByte(".!?", line[j]) >= 0 {
			current.WriteByte(line[j])
			j++
		}
		for j < len(line) && strings.IndexByte("\"')]}", line[j]) >= 0 {
			current.WriteByte(line[j])
			j++
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
		i = j - 1
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
