package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// DocumentMsg asks a worker to run the pipeline for a claimed document.
type DocumentMsg struct {
	DocumentID string `json:"document_id"`
	RunID      string `json:"run_id"`
}

func (m DocumentMsg) validate() error {
	if m.DocumentID == "" {
		return errors.New("document_id is empty")
	}
	if m.RunID == "" {
		return errors.New("run_id is empty")
	}
	return nil
}

func ParseDocumentMsg(body []byte) (DocumentMsg, error) {
	var msg DocumentMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("decode document message: %w", err)
	}
	return msg, msg.validate()
}

// Publisher sends document runs to document_queue. It is safe for
// concurrent use.
type Publisher struct {
	mu sync.Mutex
	ch *amqp091.Channel
}

func NewPublisher(ch *amqp091.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishDocument matches executor.Publisher.
func (p *Publisher) PublishDocument(ctx context.Context, documentID string, runID string) error {
	msg := DocumentMsg{DocumentID: documentID, RunID: runID}
	if err := msg.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishFIFO(p.ch, DocumentQueue, body); err != nil {
		return err
	}
	logger.Debug("[Queue] Published document run", "document_id", documentID, "run_id", runID)
	return nil
}

// Dispatcher runs a claimed document run, e.g. executor.Dispatch.
type Dispatcher func(ctx context.Context, documentID string, runID string) error

// ProcessDocumentMessage hands the run in body to dispatch. Malformed
// messages are returned as errors so they end up in the dead-letter queue.
func ProcessDocumentMessage(ctx context.Context, dispatch Dispatcher, body []byte) error {
	msg, err := ParseDocumentMsg(body)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Received document run", "document_id", msg.DocumentID, "run_id", msg.RunID)
	return dispatch(ctx, msg.DocumentID, msg.RunID)
}
