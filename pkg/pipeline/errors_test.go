package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStageError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("run failed: %w", NewStageError(StageIndexing, ErrIndex, cause))

	if !errors.Is(err, ErrIndex) {
		t.Fatal("expected kind to match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to match")
	}
	if errors.Is(err, ErrEmbedding) {
		t.Fatal("unexpected kind match")
	}
	if StageOf(err) != StageIndexing {
		t.Fatalf("unexpected stage %q", StageOf(err))
	}
	if MessageOf(err) != "connection refused" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"extraction", NewStageError(StageExtraction, ErrExtraction, errors.New("x")), false},
		{"split", NewStageError(StageSplitting, ErrSplit, errors.New("x")), false},
		{"embedding", NewStageError(StageEmbedding, ErrEmbedding, errors.New("x")), true},
		{"index", NewStageError(StageIndexing, ErrIndex, errors.New("x")), true},
		{"graph default", NewStageError(StageGraph, ErrGraphExtraction, errors.New("x")), false},
		{"graph transient", Transient(StageGraph, ErrGraphExtraction, errors.New("x")), true},
		{"canceled", NewStageError(StageEmbedding, ErrEmbedding, context.Canceled), false},
		{"transient canceled", Transient(StageGraph, ErrGraphExtraction, context.DeadlineExceeded), false},
		{"plain error", errors.New("x"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
