// Package audit defines the audit trail contract used by domain services.
package audit

import (
	"context"

	"pestctl/internal/core/id"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionPartialAccept Action = "partial_accept"
	ActionReceive       Action = "receive"
)

// Logger records entity changes. Implementations write inside the caller's
// transaction so the trail commits with the change itself.
type Logger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any) error
}

// Nop discards audit entries.
type Nop struct{}

// LogChange implements Logger.
func (Nop) LogChange(context.Context, string, id.ID, Action, map[string]any) error { return nil }
