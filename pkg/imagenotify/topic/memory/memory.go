// Package memory provides an in-process PubSub. New subscriptions start
// pending and receive messages only after Confirm.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

const topicPrefix = "arn:memory:topic:"

// Message is a delivery recorded for one confirmed endpoint
type Message struct {
	Topic    string
	Endpoint string
	Subject  string
	Body     string
}

type topic struct {
	subs []*imagenotify.Subscription
}

// Transport is an in-memory implementation of imagenotify.PubSub
type Transport struct {
	mu        sync.RWMutex
	topics    map[string]*topic
	delivered []Message
	listCalls int

	// Fail, when set, is consulted before each call; a non-nil result is
	// returned as the call's error.
	Fail func(op string) error
}

// New creates a transport holding one topic per name
func New(names ...string) *Transport {
	t := &Transport{topics: make(map[string]*topic)}
	for _, name := range names {
		t.CreateTopic(name)
	}
	return t
}

// TopicID returns the identifier assigned to the topic called name
func TopicID(name string) string {
	return topicPrefix + name
}

// CreateTopic adds a topic and returns its identifier
func (t *Transport) CreateTopic(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := TopicID(name)
	if _, ok := t.topics[id]; !ok {
		t.topics[id] = &topic{}
	}
	return id
}

// DeleteTopic removes a topic with all of its subscriptions
func (t *Transport) DeleteTopic(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.topics, TopicID(name))
}

// Confirm moves every pending subscription of endpoint to confirmed and
// reports how many changed.
func (t *Transport) Confirm(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, tp := range t.topics {
		for _, sub := range tp.subs {
			if sub.Endpoint == endpoint && sub.Pending() {
				sub.ID = uuid.NewString()
				sub.Status = imagenotify.SubscriptionStatusConfirmed
				n++
			}
		}
	}
	return n
}

// Delivered returns a copy of every message delivered so far
func (t *Transport) Delivered() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Message(nil), t.delivered...)
}

// ListTopicsCalls reports how often ListTopics was called
func (t *Transport) ListTopicsCalls() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listCalls
}

func (t *Transport) fail(op string) error {
	if t.Fail == nil {
		return nil
	}
	return t.Fail(op)
}

func (t *Transport) ListTopics(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	t.listCalls++
	t.mu.Unlock()

	if err := t.fail("list_topics"); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.topics))
	for id := range t.topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Subscribe adds a pending subscription. Subscribing an endpoint that is
// already subscribed leaves the existing subscription as it is.
func (t *Transport) Subscribe(ctx context.Context, topicID, protocol, endpoint string) error {
	if err := t.fail("subscribe"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tp, err := t.lookupLocked(topicID)
	if err != nil {
		return err
	}
	for _, sub := range tp.subs {
		if sub.Endpoint == endpoint && sub.Protocol == protocol {
			return nil
		}
	}
	tp.subs = append(tp.subs, &imagenotify.Subscription{
		Protocol: protocol,
		Endpoint: endpoint,
		Status:   imagenotify.SubscriptionStatusPending,
	})
	return nil
}

func (t *Transport) ListSubscriptions(ctx context.Context, topicID string) ([]imagenotify.Subscription, error) {
	if err := t.fail("list_subscriptions"); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	tp, err := t.lookupLocked(topicID)
	if err != nil {
		return nil, err
	}
	subs := make([]imagenotify.Subscription, 0, len(tp.subs))
	for _, sub := range tp.subs {
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (t *Transport) Unsubscribe(ctx context.Context, subscriptionID string) error {
	if err := t.fail("unsubscribe"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tp := range t.topics {
		for i, sub := range tp.subs {
			if sub.ID != "" && sub.ID == subscriptionID {
				tp.subs = append(tp.subs[:i], tp.subs[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", imagenotify.ErrSubscriptionNotFound, subscriptionID)
}

// Publish records one delivery per confirmed subscription of topicID
func (t *Transport) Publish(ctx context.Context, topicID, subject, message string) error {
	if err := t.fail("publish"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tp, err := t.lookupLocked(topicID)
	if err != nil {
		return err
	}
	for _, sub := range tp.subs {
		if sub.Pending() {
			continue
		}
		t.delivered = append(t.delivered, Message{
			Topic:    topicID,
			Endpoint: sub.Endpoint,
			Subject:  subject,
			Body:     message,
		})
	}
	return nil
}

func (t *Transport) lookupLocked(topicID string) (*topic, error) {
	tp, ok := t.topics[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", imagenotify.ErrTopicNotFound, topicID)
	}
	return tp, nil
}
