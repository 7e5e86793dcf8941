package interfaces

import "context"

// EventPublisher delivers post-commit notifications to interested systems.
// Delivery is best effort and never affects a committed unit of work.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
