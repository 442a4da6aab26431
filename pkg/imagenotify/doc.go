// Package imagenotify provides an image upload pipeline with pluggable object
// store, message queue and publish/subscribe backends.
//
// An upload stores the blob, derives its metadata record and enqueues that
// record. A separate Worker drains the queue on an interval and fans each
// record out to the topic's confirmed email subscribers. Queue messages are
// acknowledged only after the publish succeeds, so delivery to the fan-out
// step is at-least-once.
//
// Backends live in subpackages: storage (memory, s3, minio), queue (memory,
// sqs, rabbitmq) and topic (memory, sns).
package imagenotify
