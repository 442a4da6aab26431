package imagenotify

import (
	"context"
	"iter"
	"time"
)

// BlobStore defines the interface for object store backends
type BlobStore interface {
	// Put stores data under key, overwriting any existing object
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the raw bytes stored under key or ErrObjectNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// Stat returns size and last-modified time or ErrObjectNotFound
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// ListAll yields every stored key, following pagination until the
	// backend reports no more pages. Each range over the sequence lists again.
	ListAll(ctx context.Context) iter.Seq2[string, error]
}

// MessageQueue defines the interface for queue transports
type MessageQueue interface {
	// ResolveQueue turns a logical queue name into the identifier used by
	// the other calls (a queue URL for SQS, the queue name for AMQP)
	ResolveQueue(ctx context.Context, name string) (string, error)

	// SendMessage submits body to the queue
	SendMessage(ctx context.Context, queue string, body []byte) error

	// ReceiveMessages waits up to wait for at most max messages. Received
	// messages are not removed until DeleteMessage is called.
	ReceiveMessages(ctx context.Context, queue string, max int, wait time.Duration) ([]QueueMessage, error)

	// DeleteMessage acknowledges a received message
	DeleteMessage(ctx context.Context, queue string, receiptHandle string) error
}

// MessageReleaser is implemented by transports that can return a received
// message to the queue before its visibility timeout. Transports without it
// redeliver when the timeout passes.
type MessageReleaser interface {
	ReleaseMessage(ctx context.Context, queue string, receiptHandle string) error
}

// PubSub defines the interface for publish/subscribe transports
type PubSub interface {
	// ListTopics returns the identifiers of every topic visible to the caller
	ListTopics(ctx context.Context) ([]string, error)

	// Subscribe registers endpoint; the new subscription starts pending
	Subscribe(ctx context.Context, topic, protocol, endpoint string) error

	// ListSubscriptions returns every subscription of topic
	ListSubscriptions(ctx context.Context, topic string) ([]Subscription, error)

	// Unsubscribe removes a confirmed subscription by its identifier
	Unsubscribe(ctx context.Context, subscriptionID string) error

	// Publish sends message to every confirmed subscriber of topic
	Publish(ctx context.Context, topic, subject, message string) error
}

// Service defines the pipeline operations exposed to transports
type Service interface {
	// HandleUpload stores the image, derives its record and enqueues it
	HandleUpload(ctx context.Context, name string, data []byte) (*ImageMetaInfo, error)
	Download(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	ListImages(ctx context.Context) ([]string, error)

	// Metadata operations
	MetaOf(ctx context.Context, name string) (*ImageMetaInfo, error)
	MetaOfRandom(ctx context.Context) (*ImageMetaInfo, error)

	// Subscription operations
	Subscribe(ctx context.Context, email string) error
	Unsubscribe(ctx context.Context, email string) error

	// ProcessBatch drains one batch and publishes each message independently
	ProcessBatch(ctx context.Context) (BatchResult, error)
}
