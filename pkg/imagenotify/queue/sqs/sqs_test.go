package sqs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

type fakeAPI struct {
	queues   map[string]string
	sent     []*sqs.SendMessageInput
	received []*sqs.ReceiveMessageInput
	deleted  []*sqs.DeleteMessageInput
	messages []types.Message
	err      error
}

func (f *fakeAPI) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	url, ok := f.queues[aws.ToString(params.QueueName)]
	if !ok {
		return nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(url)}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeAPI) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = append(f.received, params)
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, params)
	return &sqs.DeleteMessageOutput{}, nil
}

const queueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/uploads-notification-queue"

func newFake() *fakeAPI {
	return &fakeAPI{queues: map[string]string{"uploads-notification-queue": queueURL}}
}

func TestResolveQueue(t *testing.T) {
	tr := NewWithClient(newFake(), Config{})

	url, err := tr.ResolveQueue(context.Background(), "uploads-notification-queue")
	require.NoError(t, err)
	assert.Equal(t, queueURL, url)

	_, err = tr.ResolveQueue(context.Background(), "missing")
	assert.ErrorIs(t, err, imagenotify.ErrQueueNotFound)
}

func TestSendMessage(t *testing.T) {
	api := newFake()
	tr := NewWithClient(api, Config{})

	require.NoError(t, tr.SendMessage(context.Background(), queueURL, []byte(`{"ImageName":"a.jpg"}`)))
	require.Len(t, api.sent, 1)
	assert.Equal(t, queueURL, aws.ToString(api.sent[0].QueueUrl))
	assert.Equal(t, `{"ImageName":"a.jpg"}`, aws.ToString(api.sent[0].MessageBody))
}

func TestReceiveMessages(t *testing.T) {
	api := newFake()
	api.messages = []types.Message{
		{MessageId: aws.String("m-1"), Body: aws.String("one"), ReceiptHandle: aws.String("r-1")},
		{MessageId: aws.String("m-2"), Body: aws.String("two"), ReceiptHandle: aws.String("r-2")},
	}
	tr := NewWithClient(api, Config{VisibilityTimeout: 45 * time.Second})

	msgs, err := tr.ReceiveMessages(context.Background(), queueURL, 10, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, imagenotify.QueueMessage{ID: "m-1", Body: []byte("one"), ReceiptHandle: "r-1"}, msgs[0])

	require.Len(t, api.received, 1)
	in := api.received[0]
	assert.Equal(t, int32(10), in.MaxNumberOfMessages)
	assert.Equal(t, int32(5), in.WaitTimeSeconds)
	assert.Equal(t, int32(45), in.VisibilityTimeout)
}

func TestReceiveMessagesClampsLimits(t *testing.T) {
	api := newFake()
	tr := NewWithClient(api, Config{})

	_, err := tr.ReceiveMessages(context.Background(), queueURL, 50, time.Minute)
	require.NoError(t, err)
	_, err = tr.ReceiveMessages(context.Background(), queueURL, 0, 0)
	require.NoError(t, err)

	require.Len(t, api.received, 2)
	assert.Equal(t, int32(10), api.received[0].MaxNumberOfMessages)
	assert.Equal(t, int32(20), api.received[0].WaitTimeSeconds)
	assert.Equal(t, int32(0), api.received[0].VisibilityTimeout)
	assert.Equal(t, int32(1), api.received[1].MaxNumberOfMessages)
	assert.Equal(t, int32(0), api.received[1].WaitTimeSeconds)
}

func TestDeleteMessage(t *testing.T) {
	api := newFake()
	tr := NewWithClient(api, Config{})

	require.NoError(t, tr.DeleteMessage(context.Background(), queueURL, "r-1"))
	require.Len(t, api.deleted, 1)
	assert.Equal(t, "r-1", aws.ToString(api.deleted[0].ReceiptHandle))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{name: "nil", err: nil},
		{name: "typed", err: &types.QueueDoesNotExist{}, notFound: true},
		{name: "legacy code", err: &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue"}, notFound: true},
		{name: "throttled", err: &smithy.GenericAPIError{Code: "ThrottlingException"}},
		{name: "network", err: errors.New("dial tcp: i/o timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.notFound, errors.Is(got, imagenotify.ErrQueueNotFound))
		})
	}
}
