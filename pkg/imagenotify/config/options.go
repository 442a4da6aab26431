package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithBackends selects the storage, queue and topic backend kinds
func WithBackends(storage, queue, topic string) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = storage
		c.QueueBackend = queue
		c.TopicBackend = topic
		return nil
	}
}

// WithBucket sets the bucket used by the s3 and minio backends
func WithBucket(bucket string) Option {
	return func(c *ServerConfig) error {
		c.Bucket = bucket
		return nil
	}
}

// WithNames sets the logical queue and topic names
func WithNames(queueName, topicName string) Option {
	return func(c *ServerConfig) error {
		if queueName == "" || topicName == "" {
			return fmt.Errorf("queue and topic names cannot be empty")
		}
		c.QueueName = queueName
		c.TopicName = topicName
		return nil
	}
}

// WithPublicURLBase overrides the URL prefix placed in notifications
func WithPublicURLBase(base string) Option {
	return func(c *ServerConfig) error {
		c.PublicURLBase = base
		return nil
	}
}

// WithWorker configures the queue worker
func WithWorker(enabled bool, interval time.Duration, batchSize int, wait time.Duration) Option {
	return func(c *ServerConfig) error {
		c.WorkerEnabled = enabled
		c.PollInterval = interval
		c.BatchSize = batchSize
		c.WaitTime = wait
		return nil
	}
}

// WithAWS sets the region and static credentials of the AWS backends.
// Empty keys use the default credential chain.
func WithAWS(region, accessKeyID, secretAccessKey, endpoint string) Option {
	return func(c *ServerConfig) error {
		c.AWS.Region = region
		c.AWS.AccessKeyID = accessKeyID
		c.AWS.SecretAccessKey = secretAccessKey
		c.AWS.Endpoint = endpoint
		return nil
	}
}
