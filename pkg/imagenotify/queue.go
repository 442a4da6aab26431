package imagenotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultBatchSize is the largest batch requested from the queue per drain
	DefaultBatchSize = 10
	// DefaultWaitTime bounds how long a drain waits for messages to arrive
	DefaultWaitTime = 5 * time.Second
)

// Delivery is a drained queue message. Record is nil when the body could not
// be decoded, in which case DecodeErr is set.
type Delivery struct {
	Message   QueueMessage
	Record    *ImageMetaInfo
	DecodeErr error
}

// NotificationQueue serializes metadata records onto a MessageQueue and
// drains them back. The queue name is resolved lazily and cached.
type NotificationQueue struct {
	transport MessageQueue
	name      string
	batchSize int
	waitTime  time.Duration
	queue     *resolver
}

// NewNotificationQueue creates a client for the logical queue name.
func NewNotificationQueue(transport MessageQueue, name string, batchSize int, waitTime time.Duration) *NotificationQueue {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if waitTime < 0 {
		waitTime = DefaultWaitTime
	}
	q := &NotificationQueue{
		transport: transport,
		name:      name,
		batchSize: batchSize,
		waitTime:  waitTime,
	}
	q.queue = newResolver(func(ctx context.Context) (string, error) {
		return transport.ResolveQueue(ctx, name)
	})
	return q
}

// Enqueue submits record as a JSON message.
func (q *NotificationQueue) Enqueue(ctx context.Context, record *ImageMetaInfo) error {
	body, err := json.Marshal(record)
	if err != nil {
		return &QueueError{Queue: q.name, Op: "encode", Err: err}
	}

	queueID, err := q.queue.get(ctx)
	if err != nil {
		return &QueueError{Queue: q.name, Op: "resolve", Err: err}
	}

	if err := q.transport.SendMessage(ctx, queueID, body); err != nil {
		q.queue.resetOn(err)
		return &QueueError{Queue: q.name, Op: "send", Err: err}
	}
	return nil
}

// DrainBatch receives up to the configured batch size, waiting at most the
// configured wait time. Messages stay on the queue until Ack.
func (q *NotificationQueue) DrainBatch(ctx context.Context) ([]Delivery, error) {
	queueID, err := q.queue.get(ctx)
	if err != nil {
		return nil, &QueueError{Queue: q.name, Op: "resolve", Err: err}
	}

	msgs, err := q.transport.ReceiveMessages(ctx, queueID, q.batchSize, q.waitTime)
	if err != nil {
		q.queue.resetOn(err)
		return nil, &QueueError{Queue: q.name, Op: "receive", Err: err}
	}

	deliveries := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		d := Delivery{Message: msg}
		var record ImageMetaInfo
		if err := json.Unmarshal(msg.Body, &record); err != nil {
			d.DecodeErr = fmt.Errorf("failed to decode message %s: %w", msg.ID, err)
		} else {
			d.Record = &record
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Ack removes a handled delivery from the queue.
func (q *NotificationQueue) Ack(ctx context.Context, d Delivery) error {
	queueID, err := q.queue.get(ctx)
	if err != nil {
		return &QueueError{Queue: q.name, Op: "resolve", Err: err}
	}

	if err := q.transport.DeleteMessage(ctx, queueID, d.Message.ReceiptHandle); err != nil {
		q.queue.resetOn(err)
		return &QueueError{Queue: q.name, Op: "delete", Err: err}
	}
	return nil
}

// Release hands an unhandled delivery back for redelivery. It is a no-op
// when the transport is not a MessageReleaser.
func (q *NotificationQueue) Release(ctx context.Context, d Delivery) error {
	releaser, ok := q.transport.(MessageReleaser)
	if !ok {
		return nil
	}

	queueID, err := q.queue.get(ctx)
	if err != nil {
		return &QueueError{Queue: q.name, Op: "resolve", Err: err}
	}

	if err := releaser.ReleaseMessage(ctx, queueID, d.Message.ReceiptHandle); err != nil {
		q.queue.resetOn(err)
		return &QueueError{Queue: q.name, Op: "release", Err: err}
	}
	return nil
}
