package movement_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/events"
	"pestctl/internal/domain/inmem"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/domain/movement"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func inMonths(n int) *time.Time {
	d := time.Now().UTC().AddDate(0, n, 0).Truncate(24 * time.Hour)
	return &d
}

// stocked seeds the warehouse with two batches of the fixture item:
// A (5 KG, expiring first) and B (10 KG).
func stocked(t *testing.T) (*inmem.Fixture, *batch.Batch, *batch.Batch) {
	t.Helper()
	f := inmem.NewFixture()
	created := time.Now().UTC().Add(-time.Hour)
	a := f.Seed(entity.Branch(f.MainBranchID), "LOT-A", "5", "100", inMonths(2), created)
	b := f.Seed(entity.Branch(f.MainBranchID), "LOT-B", "10", "120", inMonths(6), created)
	return f, a, b
}

func issueReq(f *inmem.Fixture, qty, unit string, dst entity.Location) movement.Request {
	return movement.Request{
		Source:      entity.Warehouse(id.Nil()),
		Destination: dst,
		Lines:       []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec(qty), Unit: unit}},
	}
}

func TestCreateReceipt_ConvertsToBaseAndTopsUpBatch(t *testing.T) {
	f := inmem.NewFixture()
	ctx := f.AdminCtx()

	req := movement.Request{
		Destination: entity.Branch(f.BranchID),
		Reference:   "INV-778",
		Lines: []movement.LineRequest{{
			ItemID:     f.Item.ID,
			Qty:        dec("500"),
			Unit:       "gram",
			Rate:       dec("0.5"),
			BatchNo:    "LOT-9",
			ExpiryDate: inMonths(12),
		}},
	}
	m, err := f.Movements.CreateReceipt(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, movement.StatusCompleted, m.Status)
	assert.True(t, strings.HasPrefix(m.Number, "GRN-"), m.Number)
	require.Len(t, m.Lines, 1)
	line := m.Lines[0]
	assert.Equal(t, "GRAM", line.Unit)
	assert.Equal(t, "KG", line.BaseUnit)
	assertDec(t, "0.5", line.BaseQty)
	assertDec(t, "500", line.Rate)
	assertDec(t, "250", line.Amounts.Base)
	assertDec(t, "45", line.Amounts.GST)
	assertDec(t, "295", line.Amounts.Total)

	b, err := f.Batches.Get(ctx, f.CompanyID, line.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-9", b.BatchNo)
	assert.True(t, b.Location.Equal(entity.Branch(f.BranchID)))
	assertDec(t, "0.5", b.CurrentQty)

	// Same batch number at the same location tops up the existing batch.
	again, err := f.Movements.CreateReceipt(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, line.BatchID, again.Lines[0].BatchID)
	assertDec(t, "1", f.Qty(line.BatchID))
	assert.NotEqual(t, m.Number, again.Number)

	rec, err := f.Ledger.Reconcile(ctx, f.CompanyID, line.BatchID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
	assert.Equal(t, 2, rec.Entries)
}

func TestCreateReceipt_DefaultsBatchNumber(t *testing.T) {
	f := inmem.NewFixture()
	m, err := f.Movements.CreateReceipt(f.AdminCtx(), movement.Request{
		Destination: entity.Branch(f.MainBranchID),
		Lines:       []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("2"), Unit: "KG", Rate: dec("80")}},
	})
	require.NoError(t, err)
	assert.Equal(t, m.Number+"-1", m.Lines[0].BatchNo)
	assertDec(t, "18", m.Lines[0].GSTRate)
}

func TestCreateIssue_SplitsAcrossBatchesFEFO(t *testing.T) {
	f, a, b := stocked(t)
	ctx := f.AdminCtx()

	m, err := f.Movements.CreateIssue(ctx, issueReq(f, "6500", "GRAM", entity.Technician(f.TechnicianID)))
	require.NoError(t, err)

	assert.Equal(t, movement.StatusAwaitingApproval, m.Status)
	assert.True(t, m.Source.Equal(entity.Branch(f.MainBranchID)), "warehouse resolves to the main branch")
	require.NotNil(t, m.ApprovalID)

	require.Len(t, m.Lines, 2)
	assert.Equal(t, a.ID, m.Lines[0].BatchID)
	assertDec(t, "5", m.Lines[0].BaseQty)
	assertDec(t, "5000", m.Lines[0].Qty)
	assert.Equal(t, b.ID, m.Lines[1].BatchID)
	assertDec(t, "1.5", m.Lines[1].BaseQty)
	assertDec(t, "1500", m.Lines[1].Qty)
	assertDec(t, "590", m.Lines[0].Amounts.Total)

	// Source is debited at issue time, the destination waits for approval.
	assertDec(t, "0", f.Qty(a.ID))
	assertDec(t, "8.5", f.Qty(b.ID))
	held, err := f.Batches.List(ctx, batch.ListFilter{CompanyID: f.CompanyID, Location: ptr(entity.Technician(f.TechnicianID))})
	require.NoError(t, err)
	assert.Empty(t, held.Items)

	ap, err := f.Approvals.Get(ctx, *m.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, ap.Status)
	assert.True(t, ap.ApproverScope.Equal(entity.Technician(f.TechnicianID)))
	require.Len(t, ap.Items, 2)
	assertDec(t, "1500", ap.Items[1].OriginalQty)

	evs := f.Store.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.MovementCreated, evs[0].EventType)
}

func TestCreateIssue_InsufficientStockChangesNothing(t *testing.T) {
	f, a, b := stocked(t)
	ctx := f.AdminCtx()
	ledgerBefore := f.Store.LedgerLen()

	_, err := f.Movements.CreateIssue(ctx, issueReq(f, "20", "KG", entity.Branch(f.BranchID)))
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "15", appErr.Details["available"])
	assert.Equal(t, "5", appErr.Details["shortfall"])
	assert.Equal(t, "KG", appErr.Details["unit"])

	assertDec(t, "5", f.Qty(a.ID))
	assertDec(t, "10", f.Qty(b.ID))
	assert.Equal(t, ledgerBefore, f.Store.LedgerLen())
	assert.Empty(t, f.Store.Events())

	list, err := f.Movements.List(ctx, movement.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.TotalCount)
}

func TestCreateIssue_SecondLineFailureRollsBackFirst(t *testing.T) {
	f, a, b := stocked(t)
	ctx := f.AdminCtx()

	req := issueReq(f, "3", "KG", entity.Branch(f.BranchID))
	req.Lines = append(req.Lines, movement.LineRequest{ItemID: f.Item.ID, Qty: dec("1"), Unit: "LITRE"})

	_, err := f.Movements.CreateIssue(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnsupportedUnit))
	assertDec(t, "5", f.Qty(a.ID))
	assertDec(t, "10", f.Qty(b.ID))
}

func TestCreateIssue_NamedBatch(t *testing.T) {
	f, a, b := stocked(t)
	ctx := f.AdminCtx()

	req := issueReq(f, "2", "KG", entity.Technician(f.TechnicianID))
	req.Lines[0].BatchID = &b.ID
	m, err := f.Movements.CreateIssue(ctx, req)
	require.NoError(t, err)
	require.Len(t, m.Lines, 1)
	assert.Equal(t, b.ID, m.Lines[0].BatchID)
	assertDec(t, "5", f.Qty(a.ID))
	assertDec(t, "8", f.Qty(b.ID))

	elsewhere := f.Seed(entity.Branch(f.BranchID), "LOT-C", "4", "100", nil, time.Now())
	req.Lines[0].BatchID = &elsewhere.ID
	_, err = f.Movements.CreateIssue(ctx, req)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidBatch, appErr.Code)
	assert.Equal(t, apperror.BatchWrongLocation, appErr.Details["reason"])
}

func TestCreateTransfer_PostsBothSides(t *testing.T) {
	f, a, _ := stocked(t)
	ctx := f.AdminCtx()

	m, err := f.Movements.CreateTransfer(ctx, movement.Request{
		Source:      entity.Branch(f.MainBranchID),
		Destination: entity.Branch(f.BranchID),
		Lines:       []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("4"), Unit: "KG"}},
	})
	require.NoError(t, err)
	assert.Equal(t, movement.StatusCompleted, m.Status)
	require.Len(t, m.Lines, 1)
	require.NotNil(t, m.Lines[0].DestinationBatchID)

	dst, err := f.Batches.Get(ctx, f.CompanyID, *m.Lines[0].DestinationBatchID)
	require.NoError(t, err)
	assert.Equal(t, a.BatchNo, dst.BatchNo)
	require.NotNil(t, dst.ExpiryDate)
	assert.True(t, a.ExpiryDate.Equal(*dst.ExpiryDate))
	assertDec(t, "100", dst.Rate)
	assertDec(t, "4", dst.CurrentQty)
	assertDec(t, "1", f.Qty(a.ID))

	rows, err := f.Ledger.List(ctx, ledger.Filter{CompanyID: f.CompanyID, ItemID: &f.Item.ID})
	require.NoError(t, err)
	var types []ledger.MovementType
	for _, e := range rows.Items {
		if e.MovementID == m.ID {
			types = append(types, e.MovementType)
		}
	}
	assert.ElementsMatch(t, []ledger.MovementType{ledger.TypeTransferOut, ledger.TypeTransferIn}, types)
}

func TestCreateReturn_ByTechnician(t *testing.T) {
	f := inmem.NewFixture()
	held := f.Seed(entity.Technician(f.TechnicianID), "LOT-T", "3", "100", inMonths(3), time.Now())

	m, err := f.Movements.CreateReturn(f.TechnicianCtx(), movement.Request{
		Source:      entity.Technician(f.TechnicianID),
		Destination: entity.Branch(f.BranchID),
		Lines:       []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("1200"), Unit: "GRAM"}},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementReturn, m.Kind)
	assertDec(t, "1.8", f.Qty(held.ID))
	assertDec(t, "1.2", f.Qty(*m.Lines[0].DestinationBatchID))
}

func TestCreateConsumption_OneSided(t *testing.T) {
	f := inmem.NewFixture()
	held := f.Seed(entity.Technician(f.TechnicianID), "LOT-T", "3", "100", inMonths(3), time.Now())
	before := f.Store.LedgerLen()

	m, err := f.Movements.CreateConsumption(f.TechnicianCtx(), movement.Request{
		Source: entity.Technician(f.TechnicianID),
		Lines:  []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("250"), Unit: "GRAM"}},
	})
	require.NoError(t, err)
	assert.Nil(t, m.Lines[0].DestinationBatchID)
	assertDec(t, "2.75", f.Qty(held.ID))
	assert.Equal(t, before+1, f.Store.LedgerLen())

	_, err = f.Movements.CreateConsumption(f.AdminCtx(), movement.Request{
		Source: entity.Branch(f.BranchID),
		Lines:  []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("1"), Unit: "KG"}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestCreate_Authorization(t *testing.T) {
	f, a, _ := stocked(t)
	before := f.Store.LedgerLen()

	_, err := f.Movements.CreateIssue(f.TechnicianCtx(), issueReq(f, "1", "KG", entity.Technician(f.TechnicianID)))
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))

	_, err = f.Movements.CreateIssue(f.ManagerCtx(f.BranchID), issueReq(f, "1", "KG", entity.Technician(f.TechnicianID)))
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden), "manager of another branch")

	_, err = f.Movements.CreateIssue(f.ManagerCtx(f.MainBranchID), issueReq(f, "1", "KG", entity.Technician(f.TechnicianID)))
	assert.NoError(t, err)

	foreign := issueReq(f, "1", "KG", entity.Branch(f.BranchID))
	foreign.Source = entity.Warehouse(id.New())
	_, err = f.Movements.CreateIssue(f.AdminCtx(), foreign)
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))

	_, err = f.Movements.CreateIssue(context.Background(), issueReq(f, "1", "KG", entity.Branch(f.BranchID)))
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	assertDec(t, "4", f.Qty(a.ID))
	assert.Equal(t, before+1, f.Store.LedgerLen())
}

func TestCreate_Validation(t *testing.T) {
	f, _, b := stocked(t)
	ctx := f.AdminCtx()

	tests := []struct {
		name string
		run  func() error
	}{
		{"no lines", func() error {
			_, err := f.Movements.CreateIssue(ctx, movement.Request{Source: entity.Branch(f.MainBranchID), Destination: entity.Branch(f.BranchID)})
			return err
		}},
		{"zero quantity", func() error {
			_, err := f.Movements.CreateIssue(ctx, issueReq(f, "0", "KG", entity.Branch(f.BranchID)))
			return err
		}},
		{"same source and destination", func() error {
			_, err := f.Movements.CreateTransfer(ctx, issueReq(f, "1", "KG", entity.Branch(f.MainBranchID)))
			return err
		}},
		{"receipt names a batch", func() error {
			_, err := f.Movements.CreateReceipt(ctx, movement.Request{
				Destination: entity.Branch(f.BranchID),
				Lines:       []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("1"), Unit: "KG", BatchID: &b.ID}},
			})
			return err
		}},
		{"receipt with source", func() error {
			_, err := f.Movements.CreateReceipt(ctx, issueReq(f, "1", "KG", entity.Branch(f.BranchID)))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperror.HasCode(tt.run(), apperror.CodeValidation))
		})
	}
	assertDec(t, "10", f.Qty(b.ID))
}

func TestLedger_ReconcilesAfterMixedMovements(t *testing.T) {
	f, a, b := stocked(t)
	ctx := f.AdminCtx()

	_, err := f.Movements.CreateIssue(ctx, issueReq(f, "7", "KG", entity.Technician(f.TechnicianID)))
	require.NoError(t, err)
	_, err = f.Movements.CreateTransfer(ctx, movement.Request{
		Source:      entity.Branch(f.MainBranchID),
		Destination: entity.Branch(f.BranchID),
		Lines:       []movement.LineRequest{{ItemID: f.Item.ID, Qty: dec("2500"), Unit: "GRAM"}},
	})
	require.NoError(t, err)

	for _, batchID := range []id.ID{a.ID, b.ID} {
		rec, err := f.Ledger.Reconcile(ctx, f.CompanyID, batchID)
		require.NoError(t, err)
		assert.True(t, rec.Balanced, "batch %s: ledger %s, current %s", batchID, rec.LedgerQty, rec.CurrentQty)
	}
	assertDec(t, "5.5", f.Qty(b.ID))
}

func ptr[T any](v T) *T { return &v }
