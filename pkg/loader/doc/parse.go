package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// maxDocumentXML bounds the uncompressed size of word/document.xml.
const maxDocumentXML = 50 << 20

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// ParseDocx returns the visible text of a .docx file. Paragraphs and table
// rows end with a newline, table cells are tab separated and tracked
// deletions are left out.
func ParseDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("word/document.xml not found in docx")
	}
	if docFile.UncompressedSize64 > maxDocumentXML {
		return "", fmt.Errorf("word/document.xml too large: %d bytes", docFile.UncompressedSize64)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("open word/document.xml: %w", err)
	}
	defer rc.Close()

	w := &docxWriter{}
	dec := xml.NewDecoder(io.LimitReader(rc, maxDocumentXML))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse word/document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t.Name.Local)
		case xml.EndElement:
			w.end(t.Name.Local)
		case xml.CharData:
			if w.delDepth == 0 && w.inText {
				w.sb.Write(t)
			}
		}
	}

	text := strings.TrimSpace(w.sb.String())
	return excessNewlines.ReplaceAllString(text, "\n\n"), nil
}

type docxWriter struct {
	sb       strings.Builder
	inText   bool
	delDepth int
	inTable  bool
	cellIdx  int
}

func (w *docxWriter) visible() bool { return w.delDepth == 0 }

func (w *docxWriter) newline() {
	if w.sb.Len() > 0 && !strings.HasSuffix(w.sb.String(), "\n") {
		w.sb.WriteByte('\n')
	}
}

func (w *docxWriter) start(name string) {
	switch name {
	case "del":
		w.delDepth++
	case "t":
		w.inText = true
	case "tab":
		if w.visible() {
			w.sb.WriteByte('\t')
		}
	case "br", "cr":
		if w.visible() {
			w.sb.WriteByte('\n')
		}
	case "noBreakHyphen":
		if w.visible() {
			w.sb.WriteByte('-')
		}
	case "tbl":
		w.inTable = true
		w.cellIdx = 0
		w.newline()
	case "tr":
		w.cellIdx = 0
	case "tc":
		if w.inTable && w.visible() {
			if w.cellIdx > 0 {
				w.sb.WriteByte('\t')
			}
			w.cellIdx++
		}
	}
}

func (w *docxWriter) end(name string) {
	switch name {
	case "t":
		w.inText = false
	case "p":
		if w.inTable {
			return
		}
		if w.visible() {
			w.sb.WriteByte('\n')
		}
	case "tr":
		if w.visible() {
			w.sb.WriteByte('\n')
		}
	case "tbl":
		w.inTable = false
		if w.visible() {
			w.sb.WriteByte('\n')
		}
	case "del":
		if w.delDepth > 0 {
			w.delDepth--
		}
	}
}
