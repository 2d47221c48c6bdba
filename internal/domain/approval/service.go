package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/core/security"
	"pestctl/internal/core/tx"
	"pestctl/internal/core/types"
	"pestctl/internal/domain"
	"pestctl/internal/domain/audit"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/events"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/domain/posting"
	"pestctl/internal/domain/uom"
	"pestctl/pkg/logger"
)

var tracer = otel.Tracer("pestctl/approval")

const entityName = "approval"

// Service resolves issue approvals.
type Service struct {
	repo      Repository
	issues    IssueUpdater
	batches   *batch.Store
	posting   *posting.Engine
	items     catalog.Reader
	auditor   audit.Logger
	publisher events.Publisher
	txManager tx.Manager
	now       func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo      Repository
	Issues    IssueUpdater
	Batches   *batch.Store
	Posting   *posting.Engine
	Items     catalog.Reader
	Auditor   audit.Logger
	Publisher events.Publisher
	TxManager tx.Manager
}

// NewService creates the approval service.
func NewService(d Deps) *Service {
	s := &Service{
		repo:      d.Repo,
		issues:    d.Issues,
		batches:   d.Batches,
		posting:   d.Posting,
		items:     d.Items,
		auditor:   d.Auditor,
		publisher: d.Publisher,
		txManager: d.TxManager,
		now:       time.Now,
	}
	if s.auditor == nil {
		s.auditor = audit.Nop{}
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	return s
}

// OpenLine is one issue line handed to Open.
type OpenLine struct {
	IssueLineID id.ID
	LineNo      int
	ItemID      id.ID
	BatchID     id.ID
	BatchNo     string
	Qty         decimal.Decimal
	Unit        string
	BaseQty     decimal.Decimal
	Rate        decimal.Decimal
	GSTRate     decimal.Decimal
	Amounts     types.Amounts
}

// OpenRequest creates the approval of a freshly created issue.
type OpenRequest struct {
	CompanyID   id.ID
	IssueID     id.ID
	IssueNumber string
	Source      entity.Location
	Destination entity.Location
	CreatedBy   string
	Lines       []OpenLine
}

// Open creates a PENDING approval. It must run inside the issue's transaction.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Approval, error) {
	switch req.Destination.Kind {
	case entity.LocationBranch, entity.LocationTechnician:
	default:
		return nil, apperror.NewValidation("issue destination must be a branch or a technician").
			WithDetail("destination_kind", string(req.Destination.Kind))
	}
	if len(req.Lines) == 0 {
		return nil, apperror.NewValidation("approval requires at least one line")
	}

	now := s.now().UTC()
	a := &Approval{
		ID:            id.New(),
		CompanyID:     req.CompanyID,
		IssueID:       req.IssueID,
		IssueNumber:   req.IssueNumber,
		Source:        req.Source,
		ApproverScope: req.Destination,
		Status:        StatusPending,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         make([]*Item, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		a.Items = append(a.Items, &Item{
			ID:              id.New(),
			ApprovalID:      a.ID,
			IssueLineID:     l.IssueLineID,
			LineNo:          l.LineNo,
			ItemID:          l.ItemID,
			SourceBatchID:   l.BatchID,
			BatchNo:         l.BatchNo,
			Rate:            l.Rate,
			GSTRate:         l.GSTRate,
			OriginalQty:     l.Qty,
			OriginalUnit:    l.Unit,
			OriginalBaseQty: l.BaseQty,
			OriginalAmounts: l.Amounts,
			ApprovedQty:     decimal.Zero,
			ApprovedBaseQty: decimal.Zero,
			Status:          LinePending,
		})
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	return a, nil
}

// Approve accepts every line in full.
func (s *Service) Approve(ctx context.Context, approvalID id.ID) (*Approval, error) {
	return s.resolve(ctx, approvalID, audit.ActionApprove, func(ctx context.Context, a *Approval) error {
		for _, it := range a.Items {
			it.ApprovedQty = it.OriginalQty
			it.ApprovedUnit = it.OriginalUnit
			it.ApprovedBaseQty = it.OriginalBaseQty
			it.ApprovedAmounts = it.OriginalAmounts
			it.Status = LineApproved
		}
		return nil
	})
}

// Reject returns every line to its source batch. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, approvalID id.ID, reason string) (*Approval, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.NewValidation("rejection reason is required").WithDetail("field", "reason")
	}
	return s.resolve(ctx, approvalID, audit.ActionReject, func(ctx context.Context, a *Approval) error {
		for _, it := range a.Items {
			rejectItem(it)
		}
		a.RejectionReason = reason
		return nil
	})
}

// Decision is the caller's verdict on one approval item.
type Decision struct {
	ApprovalItemID id.ID
	Status         LineStatus
	// Qty and Unit apply to approved lines. Unit defaults to the original unit.
	Qty  decimal.Decimal
	Unit string
}

// PartialAccept applies per-line decisions. Every item must be decided exactly once.
func (s *Service) PartialAccept(ctx context.Context, approvalID id.ID, decisions []Decision, reason string) (*Approval, error) {
	if len(decisions) == 0 {
		return nil, apperror.NewValidation("decisions are required").WithDetail("field", "lines")
	}
	return s.resolve(ctx, approvalID, audit.ActionPartialAccept, func(ctx context.Context, a *Approval) error {
		byItem, err := indexDecisions(a, decisions)
		if err != nil {
			return err
		}

		for _, it := range a.Items {
			d := byItem[it.ID]
			if d.Status == LineRejected {
				rejectItem(it)
				continue
			}
			if err := s.approvePart(ctx, a.CompanyID, it, d); err != nil {
				return err
			}
		}
		if DeriveStatus(a.Items) != StatusApproved {
			a.RejectionReason = strings.TrimSpace(reason)
		}
		return nil
	})
}

func indexDecisions(a *Approval, decisions []Decision) (map[id.ID]Decision, error) {
	byItem := make(map[id.ID]Decision, len(decisions))
	for i, d := range decisions {
		if a.FindItem(d.ApprovalItemID) == nil {
			return nil, apperror.NewValidation("unknown approval item").
				WithDetail("line", i).
				WithDetail("approval_item_id", d.ApprovalItemID.String())
		}
		if _, dup := byItem[d.ApprovalItemID]; dup {
			return nil, apperror.NewValidation("duplicate decision for approval item").
				WithDetail("approval_item_id", d.ApprovalItemID.String())
		}
		if d.Status != LineApproved && d.Status != LineRejected {
			return nil, apperror.NewValidation("decision must be APPROVED or REJECTED").
				WithDetail("approval_item_id", d.ApprovalItemID.String())
		}
		byItem[d.ApprovalItemID] = d
	}
	for _, it := range a.Items {
		if _, ok := byItem[it.ID]; !ok {
			return nil, apperror.NewValidation("missing decision for approval item").
				WithDetail("approval_item_id", it.ID.String())
		}
	}
	return byItem, nil
}

func (s *Service) approvePart(ctx context.Context, companyID id.ID, it *Item, d Decision) error {
	if !d.Qty.IsPositive() {
		return apperror.NewValidation("approved quantity must be positive").
			WithDetail("approval_item_id", it.ID.String())
	}
	unit := d.Unit
	if strings.TrimSpace(unit) == "" {
		unit = it.OriginalUnit
	}

	item, err := s.items.GetByID(ctx, companyID, it.ItemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", it.ItemID, err)
	}
	conv := item.Converter()
	approvedBase, err := conv.ToBase(d.Qty, unit)
	if err != nil {
		return err
	}

	// Split issue lines carry a rounded original qty, so a qty in the
	// original unit is compared in that unit and never exceeds the
	// original base qty.
	exceeds := approvedBase.GreaterThan(it.OriginalBaseQty)
	if uom.NormalizeUnit(unit) == uom.NormalizeUnit(it.OriginalUnit) {
		exceeds = d.Qty.GreaterThan(it.OriginalQty)
		if d.Qty.Equal(it.OriginalQty) || approvedBase.GreaterThan(it.OriginalBaseQty) {
			approvedBase = it.OriginalBaseQty
		}
	}
	if exceeds {
		return apperror.NewValidation("approved quantity exceeds issued quantity").
			WithDetail("approval_item_id", it.ID.String()).
			WithDetail("original_qty", it.OriginalQty.String()).
			WithDetail("original_unit", it.OriginalUnit).
			WithDetail("approved_qty", d.Qty.String()).
			WithDetail("approved_unit", uom.NormalizeUnit(unit))
	}
	if !approvedBase.IsPositive() {
		return apperror.NewValidation("approved quantity rounds to zero in the base unit").
			WithDetail("approval_item_id", it.ID.String()).
			WithDetail("approved_qty", d.Qty.String()).
			WithDetail("approved_unit", uom.NormalizeUnit(unit))
	}

	it.ApprovedQty = d.Qty
	it.ApprovedUnit = uom.NormalizeUnit(unit)
	it.ApprovedBaseQty = approvedBase
	it.ApprovedAmounts = types.ComputeAmounts(approvedBase, it.Rate, it.GSTRate)
	it.Status = LineApproved
	return nil
}

func rejectItem(it *Item) {
	it.ApprovedQty = decimal.Zero
	it.ApprovedUnit = ""
	it.ApprovedBaseQty = decimal.Zero
	it.ApprovedAmounts = types.Amounts{Base: decimal.Zero, GST: decimal.Zero, Total: decimal.Zero}
	it.Status = LineRejected
}

type decideFunc func(ctx context.Context, a *Approval) error

// resolve runs one resolution as a single transaction: lock, authorize, check
// state, decide lines, settle stock, persist, audit and publish.
func (s *Service) resolve(ctx context.Context, approvalID id.ID, action audit.Action, decide decideFunc) (*Approval, error) {
	ctx, span := tracer.Start(ctx, "approval."+string(action),
		trace.WithAttributes(attribute.String("approval.id", approvalID.String())))
	defer span.End()

	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var result *Approval
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, actor.CompanyID, approvalID)
		if err != nil {
			return err
		}
		if !actor.Covers(a.ApproverScope) {
			return apperror.NewForbidden("caller is not the assigned approver").
				WithDetail("approval_id", approvalID.String()).
				WithDetail("approver_scope", a.ApproverScope.String())
		}
		if a.Status.IsTerminal() {
			return apperror.NewAlreadyProcessed(entityName, approvalID.String(), string(a.Status)).
				WithDetail("approval_id", approvalID.String())
		}

		before := a.Clone()
		if err := decide(ctx, a); err != nil {
			return err
		}

		if err := s.settle(ctx, a, actor); err != nil {
			return err
		}

		now := s.now().UTC()
		a.Status = DeriveStatus(a.Items)
		a.ApproverID = actor.UserID
		a.ResolvedAt = &now
		a.UpdatedAt = now

		if err := s.repo.SaveResolution(ctx, a); err != nil {
			return fmt.Errorf("save resolution: %w", err)
		}
		if err := s.issues.ApplyApprovalStatus(ctx, a.CompanyID, a.IssueID, a.Status); err != nil {
			return fmt.Errorf("update issue status: %w", err)
		}
		if err := s.auditor.LogChange(ctx, entityName, a.ID, action, map[string]any{
			"before": before,
			"after":  a,
		}); err != nil {
			return fmt.Errorf("audit resolution: %w", err)
		}
		if err := s.publisher.Publish(ctx, events.Event{
			AggregateType: events.AggregateApproval,
			AggregateID:   a.ID,
			EventType:     events.ApprovalResolved,
			Payload: map[string]any{
				"approval_id": a.ID,
				"issue_id":    a.IssueID,
				"status":      a.Status,
				"approver_id": a.ApproverID,
			},
		}); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}

		result = a
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "approval resolved",
		"approval_id", result.ID,
		"issue_number", result.IssueNumber,
		"status", result.Status,
		"action", action,
	)
	return result, nil
}

// settle moves stock for decided lines: the approved base quantity lands at
// the approver's location and the remainder goes back to the source batch.
func (s *Service) settle(ctx context.Context, a *Approval, actor security.Actor) error {
	date := s.now().UTC()
	for _, it := range a.Items {
		lineID := it.IssueLineID
		reversal := it.ReversalQty()
		if reversal.IsNegative() {
			return apperror.NewInternal(fmt.Errorf("negative reversal on approval item %s", it.ID))
		}

		if reversal.IsPositive() {
			_, err := s.posting.Credit(ctx, it.SourceBatchID, reversal, posting.Posting{
				Type:       ledger.TypeIssueReversal,
				MovementID: a.IssueID,
				LineID:     &lineID,
				Date:       date,
				Actor:      actor.UserID,
				Note:       fmt.Sprintf("%s line %d returned to source", a.IssueNumber, it.LineNo),
			})
			if err != nil {
				return fmt.Errorf("reverse line %d: %w", it.LineNo, err)
			}
		}

		if it.ApprovedBaseQty.IsPositive() {
			src, err := s.batches.Get(ctx, a.CompanyID, it.SourceBatchID)
			if err != nil {
				return fmt.Errorf("load source batch of line %d: %w", it.LineNo, err)
			}
			key := batch.Key{ItemID: it.ItemID, BatchNo: it.BatchNo, Location: a.ApproverScope}
			dst, err := s.posting.Receive(ctx, a.CompanyID, key, it.ApprovedBaseQty, src.Meta(), posting.Posting{
				Type:       ledger.TypeIssueAccepted,
				MovementID: a.IssueID,
				LineID:     &lineID,
				Date:       date,
				Actor:      actor.UserID,
				Note:       fmt.Sprintf("%s line %d accepted", a.IssueNumber, it.LineNo),
			})
			if err != nil {
				return fmt.Errorf("credit destination for line %d: %w", it.LineNo, err)
			}
			it.DestinationBatchID = &dst.ID
		}
	}
	return nil
}

// Get returns an approval of the caller's company.
func (s *Service) Get(ctx context.Context, approvalID id.ID) (*Approval, error) {
	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, actor.CompanyID, approvalID)
}

// List returns approvals of the caller's company. Non-admin callers only see
// approvals assigned to their own branch or technician scope.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Approval], error) {
	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return domain.ListResult[*Approval]{}, err
	}
	filter.CompanyID = actor.CompanyID
	if !actor.IsAdmin() {
		scope, ok := ownScope(actor)
		if !ok {
			return domain.ListResult[*Approval]{}, apperror.NewForbidden("caller has no approver scope")
		}
		if filter.Scope != nil && !filter.Scope.Equal(scope) {
			return domain.ListResult[*Approval]{}, apperror.NewForbidden("scope outside caller's assignment")
		}
		filter.Scope = &scope
	}
	filter.Page = filter.Page.Normalize()
	return s.repo.List(ctx, filter)
}

func ownScope(a security.Actor) (entity.Location, bool) {
	switch {
	case a.Role == security.RoleBranchManager && !id.IsNil(a.BranchID):
		return entity.Branch(a.BranchID), true
	case !id.IsNil(a.TechnicianID):
		return entity.Technician(a.TechnicianID), true
	}
	return entity.Location{}, false
}
