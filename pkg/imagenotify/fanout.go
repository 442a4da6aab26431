package imagenotify

import (
	"context"
	"log/slog"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EmailProtocol is the subscription protocol used for every endpoint
const EmailProtocol = "email"

// Fanout manages email subscriptions of one logical topic and publishes
// upload notifications to it. The topic is located by substring match over
// the topic list and cached.
type Fanout struct {
	transport     PubSub
	name          string
	subject       string
	publicURLBase string
	logger        *slog.Logger
	topic         *resolver
}

// NewFanout creates a client for the topic whose identifier contains name.
func NewFanout(transport PubSub, name, subject, publicURLBase string, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{
		transport:     transport,
		name:          name,
		subject:       subject,
		publicURLBase: publicURLBase,
		logger:        logger,
	}
	f.topic = newResolver(f.findTopic)
	return f
}

func (f *Fanout) findTopic(ctx context.Context) (string, error) {
	topics, err := f.transport.ListTopics(ctx)
	if err != nil {
		return "", err
	}
	for _, topic := range topics {
		if strings.Contains(topic, f.name) {
			return topic, nil
		}
	}
	return "", ErrTopicNotFound
}

// endpointOf returns the bare address of email, dropping any display name,
// so "Bob <bob@example.com>" and "bob@example.com" name the same endpoint.
func endpointOf(email string) (string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", ErrInvalidEmail
	}
	return addr.Address, nil
}

// Subscribe registers email as a pending subscription.
func (f *Fanout) Subscribe(ctx context.Context, email string) error {
	email, err := endpointOf(email)
	if err != nil {
		return err
	}

	topic, err := f.topic.get(ctx)
	if err != nil {
		return &TopicError{Topic: f.name, Op: "resolve", Err: err}
	}

	if err := f.transport.Subscribe(ctx, topic, EmailProtocol, email); err != nil {
		f.topic.resetOn(err)
		return &TopicError{Topic: f.name, Op: "subscribe", Err: err}
	}
	return nil
}

// Unsubscribe removes the confirmed subscription whose endpoint equals
// email. A pending subscription is left in place and nil is returned.
func (f *Fanout) Unsubscribe(ctx context.Context, email string) error {
	email, err := endpointOf(email)
	if err != nil {
		return err
	}

	topic, err := f.topic.get(ctx)
	if err != nil {
		return &TopicError{Topic: f.name, Op: "resolve", Err: err}
	}

	subs, err := f.transport.ListSubscriptions(ctx, topic)
	if err != nil {
		f.topic.resetOn(err)
		return &TopicError{Topic: f.name, Op: "list_subscriptions", Err: err}
	}

	var match *Subscription
	for i := range subs {
		if subs[i].Endpoint == email {
			match = &subs[i]
			break
		}
	}
	if match == nil {
		return &TopicError{Topic: f.name, Op: "unsubscribe", Err: ErrSubscriptionNotFound}
	}

	if match.Pending() {
		f.logger.Info("Subscription is not confirmed", "topic", topic, "endpoint", email)
		return nil
	}

	if err := f.transport.Unsubscribe(ctx, match.ID); err != nil {
		return &TopicError{Topic: f.name, Op: "unsubscribe", Err: err}
	}
	return nil
}

// Publish formats record and sends it to the topic's confirmed subscribers.
func (f *Fanout) Publish(ctx context.Context, record *ImageMetaInfo) error {
	topic, err := f.topic.get(ctx)
	if err != nil {
		return &TopicError{Topic: f.name, Op: "resolve", Err: err}
	}

	message := FormatNotification(record, f.publicURLBase)
	if err := f.transport.Publish(ctx, topic, f.subject, message); err != nil {
		f.topic.resetOn(err)
		return &TopicError{Topic: f.name, Op: "publish", Err: err}
	}
	return nil
}

// PublicURL builds the browser URL of the object named name.
func PublicURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
}

// FormatNotification renders the upload notification body.
func FormatNotification(record *ImageMetaInfo, publicURLBase string) string {
	var b strings.Builder
	b.WriteString("The image was uploaded successfully.\n")
	b.WriteString("Image Name: " + record.ImageName + "\n")
	b.WriteString("Image Extension: " + record.FileExtension + "\n")
	b.WriteString("Image Size: " + strconv.FormatInt(record.ContentLength, 10) + "\n")
	b.WriteString("Image Last Modified: " + record.LastModified.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("Image URL: " + PublicURL(publicURLBase, record.ImageName) + "\n")
	return b.String()
}
