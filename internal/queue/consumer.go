package queue

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. A returned error sends the message
// through the retry queue.
type Handler func(ctx context.Context, body []byte) error

// Consume delivers queueName's messages to handle until ctx is done or the
// channel closes. prefetch bounds the unacknowledged deliveries.
func Consume(ctx context.Context, ch *amqp091.Channel, queueName string, prefetch int, handle Handler) error {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		queueName,
		queueName+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", queueName)
				return nil
			}
			if err := handle(ctx, msg.Body); err != nil {
				logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
				handleProcessingError(ch, msg, queueName)
				continue
			}
			if err := msg.Ack(false); err != nil {
				logger.Error("[Queue] Failed to ack message", "queue", queueName, "err", err)
			}
		}
	}
}

// retryCount reads the x-retries header, whichever integer type the
// broker decoded it as.
func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// nextRoute decides where a failed message goes and with which headers.
func nextRoute(queueName string, headers amqp091.Table) (string, amqp091.Table) {
	retries := retryCount(headers)
	out := amqp091.Table{}
	for k, v := range headers {
		out[k] = v
	}
	if retries >= maxRetries {
		return queueName + dlqSuffix, out
	}
	out["x-retries"] = int32(retries + 1)
	return queueName + retrySuffix, out
}

func handleProcessingError(ch *amqp091.Channel, msg amqp091.Delivery, queueName string) {
	target, headers := nextRoute(queueName, msg.Headers)
	if target == queueName+dlqSuffix {
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target)
	}

	pubErr := ch.Publish(
		"",
		target,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
