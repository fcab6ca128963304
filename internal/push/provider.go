// Package push initializes the push provider, registers the device token,
// subscribes to promotion topics, and installs the message listeners.
package push

import "context"

// TypePromotional is the data.type value of messages that are logged for the
// in-app notification list.
const TypePromotional = "promotional"

// DefaultTopic is the promotions topic every install subscribes to.
const DefaultTopic = "orionwholesalepromotion"

// Notification is the display part of a push message.
type Notification struct {
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	ImageURL string `json:"image,omitempty"`
}

// RemoteMessage is a message delivered by the push provider.
type RemoteMessage struct {
	MessageID    string            `json:"messageId,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
}

// Promotional reports whether the message should be logged.
func (m *RemoteMessage) Promotional() bool {
	return m != nil && m.Data["type"] == TypePromotional
}

// Link returns the deep link carried in data, if any.
func (m *RemoteMessage) Link() string {
	if m == nil {
		return ""
	}
	return m.Data["link"]
}

// MessageHandler handles a delivered message.
type MessageHandler func(ctx context.Context, msg RemoteMessage)

// Provider is the push capability of the runtime. A nil Provider, or one that
// reports Available() == false, means the capability is missing.
type Provider interface {
	// Available reports whether the push capability exists in this runtime.
	Available() bool

	// Initialize sets the provider up. It reports existing == true when an
	// app instance was already initialized, which counts as success.
	Initialize(ctx context.Context) (existing bool, err error)

	// RequestPermission asks the user for notification permission.
	RequestPermission(ctx context.Context) (granted bool, err error)

	// Token returns the device registration token.
	Token(ctx context.Context) (string, error)

	// SubscribeToTopic subscribes token to topic.
	SubscribeToTopic(ctx context.Context, token, topic string) error

	// OnMessage registers the foreground handler and returns a function that
	// removes it.
	OnMessage(handler MessageHandler) (unsubscribe func())

	// SetBackgroundMessageHandler registers the handler used while the app is
	// in the background. A nil handler removes it.
	SetBackgroundMessageHandler(handler MessageHandler)

	// InitialNotification returns the message that launched the app, or nil.
	InitialNotification(ctx context.Context) (*RemoteMessage, error)
}
