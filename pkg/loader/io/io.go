package io

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads files from a directory on the local filesystem. Paths
// are resolved relative to the root and may not leave it.
type FileSource struct {
	root string
}

func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

func (s *FileSource) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(filePath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (s *FileSource) resolve(filePath string) (string, error) {
	if s.root == "" {
		return filepath.Clean(filePath), nil
	}
	clean := filepath.Clean("/" + filepath.FromSlash(filePath))
	full := filepath.Join(s.root, clean)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the storage root", filePath)
	}
	return full, nil
}
