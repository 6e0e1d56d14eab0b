// Package bus implements the MessageBus abstraction (spec.md §6): a
// publish/subscribe channel decoupling the Query Orchestrator from the Map
// Worker pool. The Community Engine does not publish on it; summarization
// runs in-process.
package bus

import "context"

// WorkItem is the message-bus payload shape (spec.md §6 Message-bus
// payload): a community report paired with the query that should be
// answered against it.
type WorkItem struct {
	CommunityReport []byte `json:"community_report"`
	UserQuery       string `json:"user_query"`
}

// MessageBus publishes WorkItems and hands them to subscribers with
// at-least-once delivery (spec.md §5 Delivery semantics). Implementations
// decouple publisher from subscriber entirely; the publish call returns as
// soon as the bus acknowledges receipt (fire-and-forget, spec.md §4.D step 2).
type MessageBus interface {
	// Publish sends payload on topic and returns the bus-assigned message id
	// once the bus acknowledges receipt.
	Publish(ctx context.Context, topic string, payload []byte) (string, error)

	// Subscribe registers handler against topic and blocks until ctx is
	// canceled or an unrecoverable subscription error occurs. Each delivered
	// message is passed to handler; handler errors are logged by the
	// implementation and do not stop the subscription (at-least-once
	// delivery means a later redelivery may succeed).
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte) error) error

	Close() error
}
