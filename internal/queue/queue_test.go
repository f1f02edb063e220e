package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
)

func TestNextRoute(t *testing.T) {
	tests := []struct {
		name        string
		headers     amqp091.Table
		wantQueue   string
		wantRetries any
	}{
		{name: "first failure", headers: nil, wantQueue: "document_queue_retry", wantRetries: int32(1)},
		{name: "int32 header", headers: amqp091.Table{"x-retries": int32(4)}, wantQueue: "document_queue_retry", wantRetries: int32(5)},
		{name: "int64 header", headers: amqp091.Table{"x-retries": int64(9)}, wantQueue: "document_queue_retry", wantRetries: int32(10)},
		{name: "exhausted", headers: amqp091.Table{"x-retries": int32(10)}, wantQueue: "document_queue_dlq", wantRetries: int32(10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue, headers := nextRoute(DocumentQueue, tt.headers)
			if queue != tt.wantQueue {
				t.Fatalf("queue = %q, want %q", queue, tt.wantQueue)
			}
			if headers["x-retries"] != tt.wantRetries {
				t.Fatalf("x-retries = %#v, want %#v", headers["x-retries"], tt.wantRetries)
			}
		})
	}
}

func TestNextRoute_DoesNotMutateDelivery(t *testing.T) {
	in := amqp091.Table{"x-retries": int32(2)}
	nextRoute(DocumentQueue, in)
	if in["x-retries"] != int32(2) {
		t.Fatalf("input headers changed: %v", in)
	}
}

func TestProcessDocumentMessage(t *testing.T) {
	var gotID, gotRun string
	dispatch := func(ctx context.Context, id, runID string) error {
		gotID, gotRun = id, runID
		return nil
	}

	if err := ProcessDocumentMessage(context.Background(), dispatch, []byte(`{"document_id":"doc-1","run_id":"run-1"}`)); err != nil {
		t.Fatalf("ProcessDocumentMessage() error = %v", err)
	}
	if gotID != "doc-1" || gotRun != "run-1" {
		t.Fatalf("dispatched %q/%q", gotID, gotRun)
	}

	for _, body := range []string{`not json`, `{"document_id":"doc-1"}`, `{"run_id":"r"}`} {
		if err := ProcessDocumentMessage(context.Background(), dispatch, []byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}

	boom := errors.New("pool closed")
	err := ProcessDocumentMessage(context.Background(), func(context.Context, string, string) error { return boom }, []byte(`{"document_id":"d","run_id":"r"}`))
	if !errors.Is(err, boom) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
}
