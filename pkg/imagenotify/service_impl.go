package imagenotify

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"path"
	"time"
)

const (
	// DefaultQueueName is the logical name of the upload notification queue
	DefaultQueueName = "uploads-notification-queue"
	// DefaultTopicName is the logical name of the upload notification topic
	DefaultTopicName = "uploads-notification-topic"
	// DefaultSubject is the subject of published notifications
	DefaultSubject = "Image uploaded"

	// DefaultBatchTimeout bounds the handling of one drained batch
	DefaultBatchTimeout = 30 * time.Second

	defaultContentType = "image/jpeg"
)

// service implements the Service interface
type service struct {
	store     BlobStore
	queueTr   MessageQueue
	pubsub    PubSub
	logger    *slog.Logger
	queueName string
	topicName string
	subject   string
	urlBase   string
	batchSize int
	waitTime  time.Duration
	batchTTL  time.Duration

	extractor *Extractor
	queue     *NotificationQueue
	fanout    *Fanout
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the object store backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithMessageQueue sets the queue transport
func WithMessageQueue(queue MessageQueue) Option {
	return func(s *service) {
		s.queueTr = queue
	}
}

// WithPubSub sets the publish/subscribe transport
func WithPubSub(pubsub PubSub) Option {
	return func(s *service) {
		s.pubsub = pubsub
	}
}

// WithLogger sets the logger used by the service and its clients
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithQueueName sets the logical queue name resolved on first use
func WithQueueName(name string) Option {
	return func(s *service) {
		s.queueName = name
	}
}

// WithTopicName sets the substring identifying the notification topic
func WithTopicName(name string) Option {
	return func(s *service) {
		s.topicName = name
	}
}

// WithSubject sets the subject of published notifications
func WithSubject(subject string) Option {
	return func(s *service) {
		s.subject = subject
	}
}

// WithPublicURLBase sets the base of the object URLs placed in notifications
func WithPublicURLBase(base string) Option {
	return func(s *service) {
		s.urlBase = base
	}
}

// WithBatch sets the maximum batch size and wait time of a queue drain
func WithBatch(size int, wait time.Duration) Option {
	return func(s *service) {
		s.batchSize = size
		s.waitTime = wait
	}
}

// WithBatchTimeout bounds how long a drained batch may take to handle
func WithBatchTimeout(timeout time.Duration) Option {
	return func(s *service) {
		s.batchTTL = timeout
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		queueName: DefaultQueueName,
		topicName: DefaultTopicName,
		subject:   DefaultSubject,
		batchSize: DefaultBatchSize,
		waitTime:  DefaultWaitTime,
		batchTTL:  DefaultBatchTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, errors.New("blob store is required")
	}
	if s.queueTr == nil {
		return nil, errors.New("message queue is required")
	}
	if s.pubsub == nil {
		return nil, errors.New("pubsub is required")
	}
	if s.queueName == "" || s.topicName == "" {
		return nil, errors.New("queue name and topic name are required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.batchTTL <= 0 {
		s.batchTTL = DefaultBatchTimeout
	}

	s.extractor = NewExtractor(s.store)
	s.queue = NewNotificationQueue(s.queueTr, s.queueName, s.batchSize, s.waitTime)
	s.fanout = NewFanout(s.pubsub, s.topicName, s.subject, s.urlBase, s.logger)

	return s, nil
}

// Upload pipeline

// HandleUpload performs Put, MetaOf and Enqueue in order. A failed enqueue
// leaves the stored object in place.
func (s *service) HandleUpload(ctx context.Context, name string, data []byte) (*ImageMetaInfo, error) {
	if err := ValidateImageName(name); err != nil {
		uploadsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if err := s.store.Put(ctx, name, data, contentTypeOf(name)); err != nil {
		uploadsTotal.WithLabelValues("store_failed").Inc()
		return nil, err
	}

	record, err := s.extractor.MetaOf(ctx, name)
	if err != nil {
		uploadsTotal.WithLabelValues("meta_failed").Inc()
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, record); err != nil {
		uploadsTotal.WithLabelValues("enqueue_failed").Inc()
		return nil, err
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Image uploaded", "image_name", name, "size", record.ContentLength)
	return record, nil
}

func (s *service) Download(ctx context.Context, name string) ([]byte, error) {
	return s.store.Get(ctx, name)
}

func (s *service) Delete(ctx context.Context, name string) error {
	return s.store.Delete(ctx, name)
}

func (s *service) ListImages(ctx context.Context) ([]string, error) {
	names := []string{}
	for key, err := range s.store.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		names = append(names, key)
	}
	return names, nil
}

// Metadata operations

func (s *service) MetaOf(ctx context.Context, name string) (*ImageMetaInfo, error) {
	return s.extractor.MetaOf(ctx, name)
}

func (s *service) MetaOfRandom(ctx context.Context) (*ImageMetaInfo, error) {
	return s.extractor.MetaOfRandom(ctx)
}

// Subscription operations

func (s *service) Subscribe(ctx context.Context, email string) error {
	return s.fanout.Subscribe(ctx, email)
}

func (s *service) Unsubscribe(ctx context.Context, email string) error {
	return s.fanout.Unsubscribe(ctx, email)
}

// Worker batch

// ProcessBatch drains one batch. Each message is decoded, published and
// acknowledged on its own; a failure is logged, the message is released for
// redelivery and the next message is handled. Only the drain itself can fail the call.
//
// Cancelling ctx interrupts the drain. Messages already received are still
// handled, bounded by the batch timeout rather than by ctx.
func (s *service) ProcessBatch(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	deliveries, err := s.queue.DrainBatch(ctx)
	if err != nil {
		return result, err
	}
	result.Received = len(deliveries)
	batchSize.Observe(float64(len(deliveries)))
	if len(deliveries) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.batchTTL)
	defer cancel()

	for _, d := range deliveries {
		if d.DecodeErr != nil {
			result.Failed++
			messagesTotal.WithLabelValues("decode_failed").Inc()
			s.logger.Error("Failed to decode queue message", "message_id", d.Message.ID, "err", d.DecodeErr)
			s.release(ctx, d)
			continue
		}

		if err := s.fanout.Publish(ctx, d.Record); err != nil {
			result.Failed++
			messagesTotal.WithLabelValues("publish_failed").Inc()
			s.logger.Error("Failed to publish notification", "message_id", d.Message.ID, "image_name", d.Record.ImageName, "err", err)
			s.release(ctx, d)
			continue
		}
		result.Published++

		if err := s.queue.Ack(ctx, d); err != nil {
			result.Failed++
			messagesTotal.WithLabelValues("ack_failed").Inc()
			s.logger.Error("Failed to delete queue message", "message_id", d.Message.ID, "err", err)
			continue
		}
		result.Acked++
		messagesTotal.WithLabelValues("ok").Inc()
	}

	return result, nil
}

// release returns a failed delivery to the queue. The message stays queued
// either way; a failed release only delays redelivery.
func (s *service) release(ctx context.Context, d Delivery) {
	if err := s.queue.Release(ctx, d); err != nil {
		s.logger.Warn("Failed to release queue message", "message_id", d.Message.ID, "err", err)
	}
}

func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}
