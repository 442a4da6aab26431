package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/image-notify/internal/awsconfig"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

const (
	// MaxBatchSize is the SQS limit on messages per ReceiveMessage call
	MaxBatchSize = 10
	// MaxWaitTime is the SQS limit on long polling
	MaxWaitTime = 20 * time.Second
)

// Config options for the SQS transport
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional custom endpoint, e.g. LocalStack

	// VisibilityTimeout overrides the queue's visibility timeout for
	// received messages when positive
	VisibilityTimeout time.Duration
}

// API is the subset of *sqs.Client used by the transport
type API interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Transport is an SQS implementation of imagenotify.MessageQueue. Queue
// identifiers are queue URLs.
type Transport struct {
	client API
	config Config
}

// New creates an SQS transport from the default AWS configuration chain
func New(ctx context.Context, config Config) (*Transport, error) {
	awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	var sqsOptions []func(*sqs.Options)
	if config.Endpoint != "" {
		sqsOptions = append(sqsOptions, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	return NewWithClient(sqs.NewFromConfig(awsCfg, sqsOptions...), config), nil
}

// NewWithClient creates a transport around an existing client
func NewWithClient(client API, config Config) *Transport {
	return &Transport{client: client, config: config}
}

// ResolveQueue looks up the queue URL of name
func (t *Transport) ResolveQueue(ctx context.Context, name string) (string, error) {
	out, err := t.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return "", translate(err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (t *Transport) SendMessage(ctx context.Context, queueURL string, body []byte) error {
	_, err := t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	return translate(err)
}

// ReceiveMessages long-polls for up to wait. maxCount and wait are clamped to
// the SQS limits.
func (t *Transport) ReceiveMessages(ctx context.Context, queueURL string, maxCount int, wait time.Duration) ([]imagenotify.QueueMessage, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: int32(min(max(maxCount, 1), MaxBatchSize)),
		WaitTimeSeconds:     int32(min(wait, MaxWaitTime) / time.Second),
	}
	if t.config.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(t.config.VisibilityTimeout / time.Second)
	}

	out, err := t.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, translate(err)
	}

	msgs := make([]imagenotify.QueueMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, imagenotify.QueueMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

func (t *Transport) DeleteMessage(ctx context.Context, queueURL string, receiptHandle string) error {
	_, err := t.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var missing *types.QueueDoesNotExist
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: %w", imagenotify.ErrQueueNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist":
			return fmt.Errorf("%w: %w", imagenotify.ErrQueueNotFound, err)
		}
	}
	return err
}
