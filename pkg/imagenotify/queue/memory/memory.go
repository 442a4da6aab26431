// Package memory provides an in-process MessageQueue with visibility
// timeouts, for tests and single-binary development setups.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

// DefaultVisibilityTimeout hides a received message from other receivers
const DefaultVisibilityTimeout = 30 * time.Second

type message struct {
	id        string
	body      []byte
	receipt   string
	visibleAt time.Time
	receives  int
}

type queue struct {
	messages []*message
}

// Transport is an in-memory implementation of imagenotify.MessageQueue.
// Queues are created by CreateQueue or, when AutoCreate is set, on first
// resolve.
type Transport struct {
	mu         sync.Mutex
	queues     map[string]*queue
	visibility time.Duration
	autoCreate bool
	notify     chan struct{}
	now        func() time.Time

	// Fail, when set, is consulted before each call; a non-nil result is
	// returned as the call's error.
	Fail func(op string) error
}

// Option configures a Transport
type Option func(*Transport)

// WithVisibilityTimeout sets how long a received message stays hidden
func WithVisibilityTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.visibility = d
		}
	}
}

// WithAutoCreate makes ResolveQueue create missing queues
func WithAutoCreate() Option {
	return func(t *Transport) {
		t.autoCreate = true
	}
}

// New creates an empty transport
func New(opts ...Option) *Transport {
	t := &Transport{
		queues:     make(map[string]*queue),
		visibility: DefaultVisibilityTimeout,
		notify:     make(chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateQueue registers an empty queue if name is not known yet
func (t *Transport) CreateQueue(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.queues[name]; !ok {
		t.queues[name] = &queue{}
	}
}

// DeleteQueue drops name and every message on it
func (t *Transport) DeleteQueue(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queues, name)
}

// Len returns the number of messages on name, visible or not
func (t *Transport) Len(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if q, ok := t.queues[name]; ok {
		return len(q.messages)
	}
	return 0
}

func (t *Transport) fail(op string) error {
	if t.Fail == nil {
		return nil
	}
	return t.Fail(op)
}

func (t *Transport) ResolveQueue(ctx context.Context, name string) (string, error) {
	if err := t.fail("resolve"); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.queues[name]; !ok {
		if !t.autoCreate {
			return "", fmt.Errorf("%w: %s", imagenotify.ErrQueueNotFound, name)
		}
		t.queues[name] = &queue{}
	}
	return name, nil
}

func (t *Transport) SendMessage(ctx context.Context, queueID string, body []byte) error {
	if err := t.fail("send"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[queueID]
	if !ok {
		return fmt.Errorf("%w: %s", imagenotify.ErrQueueNotFound, queueID)
	}

	stored := make([]byte, len(body))
	copy(stored, body)
	q.messages = append(q.messages, &message{
		id:        uuid.NewString(),
		body:      stored,
		visibleAt: t.now(),
	})
	t.wakeLocked()
	return nil
}

// ReceiveMessages returns up to max visible messages, in send order. When
// none is visible it waits until wait elapses or ctx is done, waking on a
// send, a release or the end of a visibility timeout. Each receipt hides the
// message for the visibility timeout and issues a fresh receipt handle.
func (t *Transport) ReceiveMessages(ctx context.Context, queueID string, max int, wait time.Duration) ([]imagenotify.QueueMessage, error) {
	if err := t.fail("receive"); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}

	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		t.mu.Lock()
		msgs, err := t.takeLocked(queueID, max)
		notify := t.notify
		next, hidden := t.nextVisibleLocked(queueID)
		now := t.now()
		t.mu.Unlock()

		if err != nil || len(msgs) > 0 || timeout == nil {
			return msgs, err
		}

		var reappear *time.Timer
		var reappearC <-chan time.Time
		if hidden {
			reappear = time.NewTimer(next.Sub(now))
			reappearC = reappear.C
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-notify:
		case <-reappearC:
		}
		if reappear != nil {
			reappear.Stop()
		}
	}
}

// nextVisibleLocked reports when the earliest hidden message of queueID
// becomes visible again.
func (t *Transport) nextVisibleLocked(queueID string) (time.Time, bool) {
	q, ok := t.queues[queueID]
	if !ok {
		return time.Time{}, false
	}
	now := t.now()
	var next time.Time
	found := false
	for _, m := range q.messages {
		if !m.visibleAt.After(now) {
			continue
		}
		if !found || m.visibleAt.Before(next) {
			next, found = m.visibleAt, true
		}
	}
	return next, found
}

func (t *Transport) takeLocked(queueID string, max int) ([]imagenotify.QueueMessage, error) {
	q, ok := t.queues[queueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", imagenotify.ErrQueueNotFound, queueID)
	}

	now := t.now()
	var out []imagenotify.QueueMessage
	for _, m := range q.messages {
		if len(out) == max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.receipt = uuid.NewString()
		m.visibleAt = now.Add(t.visibility)
		m.receives++
		out = append(out, imagenotify.QueueMessage{
			ID:            m.id,
			Body:          append([]byte(nil), m.body...),
			ReceiptHandle: m.receipt,
		})
	}
	return out, nil
}

// DeleteMessage removes the message holding receiptHandle. A stale receipt,
// one replaced by a later receive, is ignored like SQS does.
func (t *Transport) DeleteMessage(ctx context.Context, queueID string, receiptHandle string) error {
	if err := t.fail("delete"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[queueID]
	if !ok {
		return fmt.Errorf("%w: %s", imagenotify.ErrQueueNotFound, queueID)
	}

	for i, m := range q.messages {
		if m.receipt != "" && m.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// ReleaseMessage makes the message holding receiptHandle visible again at
// once. A stale receipt is ignored.
func (t *Transport) ReleaseMessage(ctx context.Context, queueID string, receiptHandle string) error {
	if err := t.fail("release"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[queueID]
	if !ok {
		return fmt.Errorf("%w: %s", imagenotify.ErrQueueNotFound, queueID)
	}

	for _, m := range q.messages {
		if m.receipt != "" && m.receipt == receiptHandle {
			m.receipt = ""
			m.visibleAt = t.now()
			t.wakeLocked()
			return nil
		}
	}
	return nil
}

// wakeLocked releases every receiver blocked on the current notify channel.
func (t *Transport) wakeLocked() {
	close(t.notify)
	t.notify = make(chan struct{})
}
