package html

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html/charset"
)

// Extract returns the readable main content of an HTML page. filePath is
// used as the page location when resolving relative links.
func Extract(content []byte, contentType string, filePath string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(content), contentType)
	if err != nil {
		return "", fmt.Errorf("decode html: %w", err)
	}

	pageURL := &url.URL{Scheme: "file", Path: path.Join("/", filePath)}
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return "", fmt.Errorf("render article text: %w", err)
	}

	return strings.TrimSpace(builder.String()), nil
}
