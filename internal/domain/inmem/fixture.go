package inmem

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	appctx "pestctl/internal/core/context"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/core/security"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/uom"
)

// Fixture is a small company with a warehouse branch, a second branch, one
// technician and one item (base KG, 1 KG = 1000 GRAM, GST 18%).
type Fixture struct {
	*Engine

	CompanyID    id.ID
	MainBranchID id.ID
	BranchID     id.ID
	TechnicianID id.ID
	Item         *catalog.Item
}

// NewFixture builds the fixture on a fresh store.
func NewFixture() *Fixture {
	store := NewStore()
	f := &Fixture{
		Engine:       NewEngine(store, nil),
		CompanyID:    id.New(),
		MainBranchID: id.New(),
		BranchID:     id.New(),
		TechnicianID: id.New(),
	}
	store.AddBranch(f.CompanyID, f.MainBranchID, true)
	store.AddBranch(f.CompanyID, f.BranchID, false)
	store.AddTechnician(f.CompanyID, f.TechnicianID)

	f.Item = f.AddItem("Cypermethrin 10% EC", "KG", "18", uom.Conversion{
		FromUnit: "KG", ToUnit: "GRAM", Factor: decimal.NewFromInt(1000),
	})
	return f
}

// AddItem registers an item of the fixture company.
func (f *Fixture) AddItem(name, baseUnit, gst string, conversions ...uom.Conversion) *catalog.Item {
	item := &catalog.Item{
		ID:          id.New(),
		CompanyID:   f.CompanyID,
		Name:        name,
		Category:    "chemical",
		BaseUnit:    baseUnit,
		GSTRate:     decimal.RequireFromString(gst),
		Conversions: conversions,
	}
	_ = f.Store.Items().Create(context.Background(), item)
	return item
}

// Seed stores an opening batch of the fixture item.
func (f *Fixture) Seed(loc entity.Location, batchNo, qty, rate string, expiry *time.Time, created time.Time) *batch.Batch {
	return f.SeedItem(f.Item, loc, batchNo, qty, rate, expiry, created)
}

// SeedItem stores an opening batch of item.
func (f *Fixture) SeedItem(item *catalog.Item, loc entity.Location, batchNo, qty, rate string, expiry *time.Time, created time.Time) *batch.Batch {
	return f.Store.SeedBatch(&batch.Batch{
		CompanyID:  f.CompanyID,
		ItemID:     item.ID,
		BatchNo:    batchNo,
		ExpiryDate: expiry,
		CurrentQty: decimal.RequireFromString(qty),
		Rate:       decimal.RequireFromString(rate),
		GSTRate:    item.GSTRate,
		Location:   loc,
		CreatedAt:  created,
	})
}

// Qty returns the current quantity of a batch.
func (f *Fixture) Qty(batchID id.ID) decimal.Decimal {
	b, err := f.Store.Batches().GetByID(context.Background(), f.CompanyID, batchID)
	if err != nil {
		return decimal.NewFromInt(-1)
	}
	return b.CurrentQty
}

// AdminCtx returns a context of a company administrator.
func (f *Fixture) AdminCtx() context.Context {
	return f.as(&appctx.UserContext{UserID: "admin-1", Role: string(security.RoleAdmin)})
}

// ManagerCtx returns a context of the manager of branchID.
func (f *Fixture) ManagerCtx(branchID id.ID) context.Context {
	return f.as(&appctx.UserContext{
		UserID:   "manager-" + branchID.String()[:8],
		BranchID: branchID.String(),
		Role:     string(security.RoleBranchManager),
	})
}

// TechnicianCtx returns a context of the fixture technician.
func (f *Fixture) TechnicianCtx() context.Context {
	return f.as(&appctx.UserContext{
		UserID:       "tech-1",
		TechnicianID: f.TechnicianID.String(),
		Role:         string(security.RoleTechnician),
	})
}

func (f *Fixture) as(u *appctx.UserContext) context.Context {
	u.CompanyID = f.CompanyID.String()
	return appctx.WithUser(context.Background(), u)
}
