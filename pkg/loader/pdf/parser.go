package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const parseTimeout = 30 * time.Second

// ErrToolMissing is returned when pdftotext is not installed.
var ErrToolMissing = errors.New("pdftotext not found in PATH")

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Parse extracts the text layer of a PDF with poppler's pdftotext.
// Scanned PDFs without a text layer yield an empty string.
func Parse(ctx context.Context, input []byte) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("%w: %v", ErrToolMissing, err)
	}

	tmpDir, err := os.MkdirTemp("", "pdfextract-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, input, 0o600); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, parseTimeout)
	defer cancel()

	cmd := exec.CommandContext(
		ctx,
		"pdftotext",
		"-enc", "UTF-8",
		"-eol", "unix",
		"-nopgbrk",
		"-q",
		pdfPath,
		"-",
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("pdftotext timed out after %s", parseTimeout)
	}
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	return Clean(string(out)), nil
}

// Clean trims the output and collapses runs of blank lines.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	return excessNewlines.ReplaceAllString(text, "\n\n")
}
