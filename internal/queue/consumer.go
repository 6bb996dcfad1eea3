package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

type queuedMessage struct {
	msg       amqp091.Delivery
	queueName string
}

// Consume delivers messages from every queue to h one at a time until ctx
// is done. Failed messages go through HandleFailure on publishCh.
func Consume(ctx context.Context, conn *amqp091.Connection, publishCh *amqp091.Channel, h *Handler) error {
	// A single consumer channel with prefetch 1 delivers one message at a
	// time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages := make(chan queuedMessage)
	for _, name := range Queues {
		msgs, err := consumerCh.Consume(name, name+"_consumer", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", name, err)
		}
		go forward(ctx, name, msgs, messages)
	}

	logger.Info("[Queue] Listening for messages", "queues", Queues)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping message processor")
			return nil
		case qm := <-messages:
			start := time.Now()
			logger.Info("[Queue] Received message", "queue", qm.queueName)

			if err := h.Handle(ctx, qm.queueName, qm.msg.Body); err != nil {
				logger.Error("[Queue] Error processing message", "queue", qm.queueName, "err", err)
				HandleFailure(ctx, publishCh, qm.msg, qm.queueName, err)
				continue
			}
			if err := qm.msg.Ack(false); err != nil {
				logger.Error("[Queue] Failed to ack message", "err", err)
			}
			logger.Info("[Queue] Message processed successfully",
				"queue", qm.queueName,
				"duration", time.Since(start).Round(time.Millisecond),
			)
		}
	}
}

func forward(ctx context.Context, name string, msgs <-chan amqp091.Delivery, out chan<- queuedMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", name)
				return
			}
			select {
			case out <- queuedMessage{msg: msg, queueName: name}:
			case <-ctx.Done():
				return
			}
		}
	}
}
