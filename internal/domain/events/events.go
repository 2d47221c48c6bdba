// Package events defines the domain events written to the transactional outbox.
package events

import (
	"context"

	"pestctl/internal/core/id"
)

// Aggregate types.
const (
	AggregateMovement = "Movement"
	AggregateApproval = "Approval"
)

// Event types.
const (
	MovementCreated  = "MovementCreated"
	ApprovalResolved = "ApprovalResolved"
	IssueReceived    = "IssueReceived"
)

// Event is a domain event. Payload is serialized to JSON by the publisher.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher records events. Implementations must write inside the caller's transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
