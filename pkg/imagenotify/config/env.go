package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads the process environment into the configuration through the
// env tags of ServerConfig. Unset variables take their env-default value, so
// WithEnv should come before options that override single fields.
//
// Server:
//
//	PORT, ENVIRONMENT
//
// Backends:
//
//	STORAGE_BACKEND   memory | s3 | minio
//	QUEUE_BACKEND     memory | sqs | rabbitmq
//	TOPIC_BACKEND     memory | sns
//
// Resources:
//
//	IMAGES_BUCKET, QUEUE_NAME, TOPIC_NAME, NOTIFICATION_SUBJECT, PUBLIC_URL_BASE
//
// Worker:
//
//	WORKER_ENABLED, WORKER_POLL_INTERVAL, WORKER_BATCH_SIZE, WORKER_WAIT_TIME,
//	WORKER_BATCH_TIMEOUT, QUEUE_VISIBILITY_TIMEOUT
//
// AWS, MinIO and RabbitMQ settings use the AWS_*, MINIO_* and RABBITMQ_*
// variables listed on their config structs.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// Usage returns a description of every supported environment variable.
func Usage() (string, error) {
	var cfg ServerConfig
	return cleanenv.GetDescription(&cfg, nil)
}
