package sns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/image-notify/internal/awsconfig"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

// pendingConfirmation is the subscription ARN SNS reports until the
// endpoint confirms
const pendingConfirmation = "PendingConfirmation"

// Config options for the SNS transport
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional custom endpoint, e.g. LocalStack
}

// API is the subset of *sns.Client used by the transport
type API interface {
	sns.ListTopicsAPIClient
	sns.ListSubscriptionsByTopicAPIClient
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	Unsubscribe(ctx context.Context, params *sns.UnsubscribeInput, optFns ...func(*sns.Options)) (*sns.UnsubscribeOutput, error)
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Transport is an SNS implementation of imagenotify.PubSub. Topic and
// subscription identifiers are ARNs.
type Transport struct {
	client API
}

// New creates an SNS transport from the default AWS configuration chain
func New(ctx context.Context, config Config) (*Transport, error) {
	awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	var snsOptions []func(*sns.Options)
	if config.Endpoint != "" {
		snsOptions = append(snsOptions, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	return NewWithClient(sns.NewFromConfig(awsCfg, snsOptions...)), nil
}

// NewWithClient creates a transport around an existing client
func NewWithClient(client API) *Transport {
	return &Transport{client: client}
}

// ListTopics returns every topic ARN, following NextToken
func (t *Transport) ListTopics(ctx context.Context) ([]string, error) {
	var arns []string
	paginator := sns.NewListTopicsPaginator(t.client, &sns.ListTopicsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate(err)
		}
		for _, topic := range page.Topics {
			arns = append(arns, aws.ToString(topic.TopicArn))
		}
	}
	return arns, nil
}

func (t *Transport) Subscribe(ctx context.Context, topicARN, protocol, endpoint string) error {
	_, err := t.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(topicARN),
		Protocol: aws.String(protocol),
		Endpoint: aws.String(endpoint),
	})
	return translate(err)
}

// ListSubscriptions returns every subscription of topicARN. Pending
// subscriptions carry no ID.
func (t *Transport) ListSubscriptions(ctx context.Context, topicARN string) ([]imagenotify.Subscription, error) {
	var subs []imagenotify.Subscription
	paginator := sns.NewListSubscriptionsByTopicPaginator(t.client, &sns.ListSubscriptionsByTopicInput{
		TopicArn: aws.String(topicARN),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate(err)
		}
		for _, s := range page.Subscriptions {
			subs = append(subs, toSubscription(s))
		}
	}
	return subs, nil
}

func (t *Transport) Unsubscribe(ctx context.Context, subscriptionARN string) error {
	_, err := t.client.Unsubscribe(ctx, &sns.UnsubscribeInput{
		SubscriptionArn: aws.String(subscriptionARN),
	})
	if err != nil {
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %w", imagenotify.ErrSubscriptionNotFound, err)
		}
		return translate(err)
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, topicARN, subject, message string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(message),
	}
	if subject != "" {
		input.Subject = aws.String(subject)
	}
	_, err := t.client.Publish(ctx, input)
	return translate(err)
}

func toSubscription(s types.Subscription) imagenotify.Subscription {
	sub := imagenotify.Subscription{
		Protocol: aws.ToString(s.Protocol),
		Endpoint: aws.ToString(s.Endpoint),
		Status:   imagenotify.SubscriptionStatusConfirmed,
	}
	if arn := aws.ToString(s.SubscriptionArn); arn == pendingConfirmation || arn == "" {
		sub.Status = imagenotify.SubscriptionStatusPending
	} else {
		sub.ID = arn
	}
	return sub
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", imagenotify.ErrTopicNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return fmt.Errorf("%w: %w", imagenotify.ErrTopicNotFound, err)
	}
	return err
}
