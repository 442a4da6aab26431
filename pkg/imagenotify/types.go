package imagenotify

import (
	"strings"
	"time"
)

// ImageMetaInfo is the metadata record derived from a stored image.
// The JSON field names are the queue message wire format.
type ImageMetaInfo struct {
	ImageName     string    `json:"ImageName"`
	ContentLength int64     `json:"ContentLength"`
	LastModified  time.Time `json:"LastModified"`
	FileExtension string    `json:"FileExtension"`
}

// ObjectInfo is what a BlobStore reports about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// QueueMessage is a message received from a MessageQueue. ReceiptHandle
// identifies this particular receipt and is required to delete the message.
type QueueMessage struct {
	ID            string
	Body          []byte
	ReceiptHandle string
}

// SubscriptionStatus represents the lifecycle state of a topic subscription.
type SubscriptionStatus string

const (
	// SubscriptionStatusPending means the endpoint has not confirmed yet.
	// A pending subscription has no removable identifier.
	SubscriptionStatusPending SubscriptionStatus = "pending"
	// SubscriptionStatusConfirmed means the endpoint receives published messages.
	SubscriptionStatusConfirmed SubscriptionStatus = "confirmed"
)

// Subscription is a single endpoint subscribed to a topic.
type Subscription struct {
	ID       string
	Protocol string
	Endpoint string
	Status   SubscriptionStatus
}

// Pending reports whether the subscription still awaits confirmation.
func (s Subscription) Pending() bool {
	return s.Status == SubscriptionStatusPending
}

// BatchResult summarizes one drain of the notification queue.
type BatchResult struct {
	Received  int
	Published int
	Acked     int
	Failed    int
}

// ExtensionOf returns the substring after the first '.' in name.
// It returns ErrInvalidImageName when name has no '.' or nothing follows it.
func ExtensionOf(name string) (string, error) {
	_, ext, found := strings.Cut(name, ".")
	if !found || ext == "" {
		return "", ErrInvalidImageName
	}
	return ext, nil
}

// ValidateImageName checks that name can be stored and described.
func ValidateImageName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidImageName
	}
	_, err := ExtensionOf(name)
	return err
}
