package imagenotify

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrObjectNotFound indicates an object is absent from the object store
	ErrObjectNotFound = errors.New("object not found")

	// ErrEmptyStore indicates a random record was requested from an empty store
	ErrEmptyStore = errors.New("object store is empty")

	// ErrTopicNotFound indicates no topic matches the configured topic name
	ErrTopicNotFound = errors.New("topic not found")

	// ErrSubscriptionNotFound indicates no subscription matches the endpoint
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrQueueNotFound indicates the configured queue does not exist
	ErrQueueNotFound = errors.New("queue not found")

	// ErrInvalidImageName indicates an image name without a usable extension
	ErrInvalidImageName = errors.New("invalid image name: expected <name>.<extension>")

	// ErrInvalidEmail indicates a subscription endpoint that is not an email address
	ErrInvalidEmail = errors.New("invalid email address")
)

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrTopicNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrQueueNotFound)
}

// StorageError represents an error related to object store operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage operation %s failed on backend %s: %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// QueueError represents an error related to message queue operations
type QueueError struct {
	Queue string
	Op    string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue operation %s failed for queue %s: %v", e.Op, e.Queue, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// TopicError represents an error related to publish/subscribe operations
type TopicError struct {
	Topic string
	Op    string
	Err   error
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("topic operation %s failed for topic %s: %v", e.Op, e.Topic, e.Err)
}

func (e *TopicError) Unwrap() error {
	return e.Err
}
