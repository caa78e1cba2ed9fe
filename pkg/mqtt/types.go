package mqtt

import (
	"context"
)

// MessageHandler processes one received publication.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the narrow MQTT surface the bridge depends on.
type Client interface {
	// Start connects in the background and returns immediately. Use AwaitConnection to wait.
	Start(ctx context.Context) error

	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
