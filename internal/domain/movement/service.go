package movement

import (
	"context"
	"fmt"
	"time"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/core/security"
	"pestctl/internal/domain"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/audit"
	"pestctl/internal/domain/events"
	"pestctl/pkg/logger"
)

// ConfirmReceipt records that the destination physically received an
// approved issue. Stock is not touched.
func (p *Processor) ConfirmReceipt(ctx context.Context, movementID id.ID) (*Movement, error) {
	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var result *Movement
	err = p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := p.repo.GetByID(ctx, actor.CompanyID, movementID)
		if err != nil {
			return err
		}
		if !actor.Covers(m.Destination) {
			return apperror.NewForbidden("caller does not hold the destination").
				WithDetail("movement_id", movementID.String())
		}
		if err := m.CanReceive(); err != nil {
			return err
		}

		before := m.Status
		now := p.now().UTC()
		if err := p.repo.MarkReceived(ctx, actor.CompanyID, m.ID, actor.UserID, now); err != nil {
			return fmt.Errorf("mark received: %w", err)
		}
		m.Status = StatusReceived
		m.ReceivedBy = actor.UserID
		m.ReceivedAt = &now
		m.UpdatedAt = now

		if err := p.auditor.LogChange(ctx, "movement", m.ID, audit.ActionReceive, map[string]any{
			"status": map[string]any{"old": before, "new": m.Status},
		}); err != nil {
			return fmt.Errorf("audit receipt: %w", err)
		}
		if err := p.publisher.Publish(ctx, events.Event{
			AggregateType: events.AggregateMovement,
			AggregateID:   m.ID,
			EventType:     events.IssueReceived,
			Payload:       map[string]any{"movement_id": m.ID, "number": m.Number, "received_by": actor.UserID},
		}); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "issue received", "number", result.Number)
	return result, nil
}

// Get returns a movement of the caller's company.
func (p *Processor) Get(ctx context.Context, movementID id.ID) (*Movement, error) {
	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return p.repo.GetByID(ctx, actor.CompanyID, movementID)
}

// List returns movements of the caller's company.
func (p *Processor) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Movement], error) {
	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return domain.ListResult[*Movement]{}, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.ListResult[*Movement]{}, apperror.NewValidation("'to' must not be before 'from'")
	}
	filter.CompanyID = actor.CompanyID
	filter.Page = filter.Page.Normalize()
	return p.repo.List(ctx, filter)
}

// IssueUpdater applies approval outcomes to issues.
type IssueUpdater struct {
	repo Repository
	now  func() time.Time
}

// NewIssueUpdater creates the approval-to-issue status bridge.
func NewIssueUpdater(repo Repository) *IssueUpdater {
	return &IssueUpdater{repo: repo, now: time.Now}
}

var _ approval.IssueUpdater = (*IssueUpdater)(nil)

// ApplyApprovalStatus implements approval.IssueUpdater.
func (u *IssueUpdater) ApplyApprovalStatus(ctx context.Context, companyID, issueID id.ID, status approval.Status) error {
	var next Status
	switch status {
	case approval.StatusApproved:
		next = StatusApproved
	case approval.StatusRejected:
		next = StatusRejected
	case approval.StatusPartiallyApproved:
		next = StatusPartial
	default:
		return fmt.Errorf("approval status %s has no issue status", status)
	}
	return u.repo.UpdateStatus(ctx, companyID, issueID, next, u.now().UTC())
}
