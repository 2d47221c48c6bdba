package movement

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
	"pestctl/internal/core/numerator"
	"pestctl/internal/core/security"
	"pestctl/internal/core/tx"
	"pestctl/internal/core/types"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/audit"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/events"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/domain/location"
	"pestctl/internal/domain/posting"
	"pestctl/internal/domain/uom"
	"pestctl/pkg/logger"
)

var tracer = otel.Tracer("pestctl/movement")

// NumeratorStrategy is the numbering strategy of movement documents.
// Strict numbering is gapless because it shares the movement transaction.
var NumeratorStrategy = numerator.StrategyStrict

// Processor runs each movement kind as one atomic unit of work.
type Processor struct {
	repo      Repository
	items     catalog.Reader
	resolver  *location.Resolver
	authz     security.MovementAuthorizer
	batches   *batch.Store
	posting   *posting.Engine
	approvals *approval.Service
	numerator numerator.Generator
	publisher events.Publisher
	auditor   audit.Logger
	txManager tx.Manager
	now       func() time.Time
}

// Deps groups the collaborators of Processor.
type Deps struct {
	Repo       Repository
	Items      catalog.Reader
	Resolver   *location.Resolver
	Authorizer security.MovementAuthorizer
	Batches    *batch.Store
	Posting    *posting.Engine
	Approvals  *approval.Service
	Numerator  numerator.Generator
	Publisher  events.Publisher
	Auditor    audit.Logger
	TxManager  tx.Manager
}

// NewProcessor creates the movement processor.
func NewProcessor(d Deps) *Processor {
	p := &Processor{
		repo:      d.Repo,
		items:     d.Items,
		resolver:  d.Resolver,
		authz:     d.Authorizer,
		batches:   d.Batches,
		posting:   d.Posting,
		approvals: d.Approvals,
		numerator: d.Numerator,
		publisher: d.Publisher,
		auditor:   d.Auditor,
		txManager: d.TxManager,
		now:       time.Now,
	}
	if p.publisher == nil {
		p.publisher = events.Nop{}
	}
	if p.auditor == nil {
		p.auditor = audit.Nop{}
	}
	return p
}

// WithClock overrides the processor clock.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// operation carries the state of one movement being built.
type operation struct {
	actor security.Actor
	m     *Movement
}

func (op *operation) posting(t ledger.MovementType, lineID id.ID, note string) posting.Posting {
	return posting.Posting{
		Type:       t,
		MovementID: op.m.ID,
		LineID:     &lineID,
		Date:       op.m.Date,
		Actor:      op.actor.UserID,
		Note:       note,
	}
}

func (op *operation) addLine(l *Line) {
	l.MovementID = op.m.ID
	l.LineNo = len(op.m.Lines) + 1
	op.m.Lines = append(op.m.Lines, l)
}

type stepFunc func(ctx context.Context, op *operation) error

// CreateReceipt brings new stock in at the destination.
func (p *Processor) CreateReceipt(ctx context.Context, req Request) (*Movement, error) {
	return p.execute(ctx, entity.MovementReceipt, req, StatusCompleted, func(ctx context.Context, op *operation) error {
		for i, l := range req.Lines {
			if err := p.receiveLine(ctx, op, i, l); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// CreateIssue debits the source immediately and opens a pending approval
// assigned to the destination.
func (p *Processor) CreateIssue(ctx context.Context, req Request) (*Movement, error) {
	return p.execute(ctx, entity.MovementIssue, req, StatusAwaitingApproval, func(ctx context.Context, op *operation) error {
		for i, l := range req.Lines {
			if err := p.outboundLine(ctx, op, i, l, ledger.TypeIssue, ""); err != nil {
				return err
			}
		}
		return nil
	}, p.openApproval)
}

// CreateTransfer moves stock between two locations without approval.
func (p *Processor) CreateTransfer(ctx context.Context, req Request) (*Movement, error) {
	return p.execute(ctx, entity.MovementTransfer, req, StatusCompleted, func(ctx context.Context, op *operation) error {
		for i, l := range req.Lines {
			if err := p.outboundLine(ctx, op, i, l, ledger.TypeTransferOut, ledger.TypeTransferIn); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// CreateReturn sends stock from the returning location back to the destination.
func (p *Processor) CreateReturn(ctx context.Context, req Request) (*Movement, error) {
	return p.execute(ctx, entity.MovementReturn, req, StatusCompleted, func(ctx context.Context, op *operation) error {
		for i, l := range req.Lines {
			if err := p.outboundLine(ctx, op, i, l, ledger.TypeReturnOut, ledger.TypeReturnIn); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// CreateConsumption records material used in the field from a technician's stock.
func (p *Processor) CreateConsumption(ctx context.Context, req Request) (*Movement, error) {
	return p.execute(ctx, entity.MovementConsumption, req, StatusCompleted, func(ctx context.Context, op *operation) error {
		for i, l := range req.Lines {
			if err := p.outboundLine(ctx, op, i, l, ledger.TypeConsumption, ""); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// execute authorizes the request and runs steps in one transaction:
// number, lines (with batch and ledger postings), header, after-create hook, event.
func (p *Processor) execute(
	ctx context.Context,
	kind entity.MovementKind,
	req Request,
	status Status,
	lines stepFunc,
	afterCreate stepFunc,
) (*Movement, error) {
	ctx, span := tracer.Start(ctx, "movement.create",
		trace.WithAttributes(attribute.String("movement.kind", string(kind))))
	defer span.End()

	actor, err := security.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(kind, req); err != nil {
		return nil, err
	}

	src, dst, err := p.resolver.ResolvePair(ctx, actor.CompanyID, req.Source, req.Destination)
	if err != nil {
		return nil, err
	}
	if err := checkLocations(kind, src, dst); err != nil {
		return nil, err
	}
	if err := p.authz.AuthorizeMovement(ctx, actor, kind, src, dst); err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = p.now()
	}
	date = date.UTC()

	var result *Movement
	err = p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := p.numerator.GetNextNumber(ctx,
			numerator.DefaultConfig(kind.NumberPrefix()),
			&numerator.Options{Strategy: NumeratorStrategy},
			date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}

		now := p.now().UTC()
		op := &operation{
			actor: actor,
			m: &Movement{
				ID:          id.New(),
				CompanyID:   actor.CompanyID,
				Kind:        kind,
				Number:      number,
				Date:        date,
				Source:      src,
				Destination: dst,
				Status:      status,
				Reference:   strings.TrimSpace(req.Reference),
				CreatedBy:   actor.UserID,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		}

		if err := lines(ctx, op); err != nil {
			return err
		}
		if err := p.repo.Create(ctx, op.m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		if afterCreate != nil {
			if err := afterCreate(ctx, op); err != nil {
				return err
			}
		}
		if err := p.publisher.Publish(ctx, events.Event{
			AggregateType: events.AggregateMovement,
			AggregateID:   op.m.ID,
			EventType:     events.MovementCreated,
			Payload: map[string]any{
				"movement_id": op.m.ID,
				"kind":        op.m.Kind,
				"number":      op.m.Number,
				"status":      op.m.Status,
				"source":      op.m.Source,
				"destination": op.m.Destination,
				"lines":       len(op.m.Lines),
			},
		}); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}

		result = op.m
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "movement created",
		"kind", result.Kind,
		"number", result.Number,
		"status", result.Status,
		"lines", len(result.Lines),
	)
	return result, nil
}

func (p *Processor) loadItem(ctx context.Context, companyID id.ID, lineIdx int, itemID id.ID) (*catalog.Item, *uom.Converter, error) {
	item, err := p.items.GetByID(ctx, companyID, itemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewNotFound("item", itemID.String()).WithDetail("line", lineIdx)
		}
		return nil, nil, fmt.Errorf("load item %s: %w", itemID, err)
	}
	return item, item.Converter(), nil
}

func (p *Processor) receiveLine(ctx context.Context, op *operation, idx int, l LineRequest) error {
	item, conv, err := p.loadItem(ctx, op.m.CompanyID, idx, l.ItemID)
	if err != nil {
		return err
	}
	unit := uom.NormalizeUnit(l.Unit)
	baseQty, err := conv.ToBase(l.Qty, unit)
	if err != nil {
		return err
	}
	if !baseQty.IsPositive() {
		return apperror.NewValidation("quantity is too small for the base unit").WithDetail("line", idx)
	}
	rate, err := conv.RatePerBase(l.Rate, unit)
	if err != nil {
		return err
	}
	gst := item.GSTRate
	if l.GSTRate != nil {
		gst = *l.GSTRate
	}

	lineID := id.New()
	batchNo := strings.TrimSpace(l.BatchNo)
	if batchNo == "" {
		batchNo = fmt.Sprintf("%s-%d", op.m.Number, len(op.m.Lines)+1)
	}
	key := batch.Key{ItemID: item.ID, BatchNo: batchNo, Location: op.m.Destination}
	meta := batch.Meta{MfgDate: l.MfgDate, ExpiryDate: l.ExpiryDate, Rate: rate, GSTRate: gst}

	b, err := p.posting.Receive(ctx, op.m.CompanyID, key, baseQty, meta,
		op.posting(ledger.TypeReceipt, lineID, op.m.Number))
	if err != nil {
		return err
	}

	op.addLine(&Line{
		ID:       lineID,
		ItemID:   item.ID,
		BatchID:  b.ID,
		BatchNo:  b.BatchNo,
		Qty:      l.Qty,
		Unit:     unit,
		BaseQty:  baseQty,
		BaseUnit: conv.BaseUnit(),
		Rate:     rate,
		GSTRate:  gst,
		Amounts:  types.ComputeAmounts(baseQty, rate, gst),
	})
	return nil
}

// outboundLine allocates a request line at the source and debits every
// allocated batch. When inType is set the same quantity is credited to the
// destination, mirroring the source batch.
func (p *Processor) outboundLine(ctx context.Context, op *operation, idx int, l LineRequest, outType, inType ledger.MovementType) error {
	item, conv, err := p.loadItem(ctx, op.m.CompanyID, idx, l.ItemID)
	if err != nil {
		return err
	}
	unit := uom.NormalizeUnit(l.Unit)
	baseQty, err := conv.ToBase(l.Qty, unit)
	if err != nil {
		return err
	}
	if !baseQty.IsPositive() {
		return apperror.NewValidation("quantity is too small for the base unit").WithDetail("line", idx)
	}

	demand := batch.Demand{
		CompanyID: op.m.CompanyID,
		ItemID:    item.ID,
		Location:  op.m.Source,
		Qty:       baseQty,
		Unit:      conv.BaseUnit(),
	}
	var allocations []batch.Allocation
	if l.BatchID != nil {
		a, err := p.batches.SelectSpecific(ctx, *l.BatchID, demand)
		if err != nil {
			return err
		}
		allocations = []batch.Allocation{a}
	} else {
		allocations, err = p.batches.AllocateFEFO(ctx, demand)
		if err != nil {
			return err
		}
	}

	requested, err := splitRequested(allocations, l.Qty, unit, conv)
	if err != nil {
		return err
	}

	for i, a := range allocations {
		lineID := id.New()
		if _, err := p.posting.Debit(ctx, a.Batch, a.Qty, conv.BaseUnit(),
			op.posting(outType, lineID, op.m.Number)); err != nil {
			return err
		}

		line := &Line{
			ID:       lineID,
			ItemID:   item.ID,
			BatchID:  a.Batch.ID,
			BatchNo:  a.Batch.BatchNo,
			Qty:      requested[i],
			Unit:     unit,
			BaseQty:  a.Qty,
			BaseUnit: conv.BaseUnit(),
			Rate:     a.Batch.Rate,
			GSTRate:  a.Batch.GSTRate,
			Amounts:  types.ComputeAmounts(a.Qty, a.Batch.Rate, a.Batch.GSTRate),
		}

		if inType != "" {
			key := batch.Key{ItemID: item.ID, BatchNo: a.Batch.BatchNo, Location: op.m.Destination}
			dst, err := p.posting.Receive(ctx, op.m.CompanyID, key, a.Qty, a.Batch.Meta(),
				op.posting(inType, lineID, op.m.Number))
			if err != nil {
				return err
			}
			line.DestinationBatchID = &dst.ID
		}

		op.addLine(line)
	}
	return nil
}

// splitRequested expresses each allocation in the requested unit. The last
// allocation takes the remainder so the parts add up to the request exactly.
func splitRequested(allocations []batch.Allocation, requested decimal.Decimal, unit string, conv *uom.Converter) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(allocations))
	used := decimal.Zero
	for i, a := range allocations {
		if i == len(allocations)-1 {
			out[i] = requested.Sub(used)
			break
		}
		q, err := conv.FromBase(a.Qty, unit)
		if err != nil {
			return nil, err
		}
		out[i] = q
		used = used.Add(q)
	}
	return out, nil
}

func (p *Processor) openApproval(ctx context.Context, op *operation) error {
	lines := make([]approval.OpenLine, 0, len(op.m.Lines))
	for _, l := range op.m.Lines {
		lines = append(lines, approval.OpenLine{
			IssueLineID: l.ID,
			LineNo:      l.LineNo,
			ItemID:      l.ItemID,
			BatchID:     l.BatchID,
			BatchNo:     l.BatchNo,
			Qty:         l.Qty,
			Unit:        l.Unit,
			BaseQty:     l.BaseQty,
			Rate:        l.Rate,
			GSTRate:     l.GSTRate,
			Amounts:     l.Amounts,
		})
	}

	a, err := p.approvals.Open(ctx, approval.OpenRequest{
		CompanyID:   op.m.CompanyID,
		IssueID:     op.m.ID,
		IssueNumber: op.m.Number,
		Source:      op.m.Source,
		Destination: op.m.Destination,
		CreatedBy:   op.actor.UserID,
		Lines:       lines,
	})
	if err != nil {
		return err
	}
	if err := p.repo.SetApproval(ctx, op.m.ID, a.ID); err != nil {
		return fmt.Errorf("link approval: %w", err)
	}
	op.m.ApprovalID = &a.ID
	return nil
}
