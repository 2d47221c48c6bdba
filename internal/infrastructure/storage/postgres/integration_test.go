//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pestctl/internal/app"
	"pestctl/internal/core/apperror"
	appctx "pestctl/internal/core/context"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/core/security"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/movement"
	"pestctl/internal/domain/uom"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/internal/infrastructure/storage/postgres/catalog_repo"
	"pestctl/internal/infrastructure/storage/postgres/document_repo"
	"pestctl/internal/infrastructure/storage/postgres/register_repo"
	"pestctl/pkg/logger"
	"pestctl/pkg/numerator"
)

type testDB struct {
	pool *postgres.Pool
	txm  *postgres.TxManager
}

func setupDB(t *testing.T) *testDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pestctl_test"),
		tcpostgres.WithUsername("pestctl"),
		tcpostgres.WithPassword("pestctl"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := postgres.NewMigrator(dsn, logger.Default().SugaredLogger)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &testDB{pool: pool, txm: postgres.NewTxManager(pool)}
}

type pgFixture struct {
	*app.Engine
	db           *testDB
	batches      *register_repo.BatchRepo
	ledgerRepo   *register_repo.LedgerRepo
	companyID    id.ID
	mainBranchID id.ID
	technicianID id.ID
	item         *catalog.Item
}

func newPGFixture(t *testing.T, db *testDB) *pgFixture {
	t.Helper()
	ctx := context.Background()

	auditor, err := postgres.NewAuditService(db.txm)
	require.NoError(t, err)
	t.Cleanup(auditor.Close)

	f := &pgFixture{
		db:           db,
		batches:      register_repo.NewBatchRepo(db.txm),
		ledgerRepo:   register_repo.NewLedgerRepo(db.txm),
		companyID:    id.New(),
		mainBranchID: id.New(),
		technicianID: id.New(),
	}
	dir := catalog_repo.NewDirectoryRepo(db.txm)
	require.NoError(t, dir.CreateBranch(ctx, f.companyID, f.mainBranchID, "Head office", true))
	require.NoError(t, dir.CreateTechnician(ctx, f.companyID, f.technicianID, &f.mainBranchID, "Ravi"))

	f.Engine = app.NewEngine(app.Deps{
		Items:     catalog_repo.NewItemRepo(db.txm),
		Batches:   f.batches,
		Ledger:    f.ledgerRepo,
		Movements: document_repo.NewMovementRepo(db.txm),
		Approvals: document_repo.NewApprovalRepo(db.txm),
		Directory: dir,
		Numerator: numerator.NewWithResolver(func(ctx context.Context) numerator.Querier {
			return db.txm.GetQuerier(ctx)
		}),
		Publisher: postgres.NewOutboxPublisher(db.txm),
		Auditor:   auditor,
		TxManager: db.txm,
	})

	f.item = &catalog.Item{
		CompanyID: f.companyID,
		Name:      "Imidacloprid 30.5% SC",
		Category:  "chemical",
		BaseUnit:  "L",
		GSTRate:   decimal.NewFromInt(18),
		Conversions: []uom.Conversion{
			{FromUnit: "L", ToUnit: "ML", Factor: decimal.NewFromInt(1000)},
		},
	}
	require.NoError(t, f.Catalog.Create(f.adminCtx(), f.item))
	return f
}

func (f *pgFixture) as(u *appctx.UserContext) context.Context {
	u.CompanyID = f.companyID.String()
	return appctx.WithUser(context.Background(), u)
}

func (f *pgFixture) adminCtx() context.Context {
	return f.as(&appctx.UserContext{UserID: "admin-1", Role: string(security.RoleAdmin)})
}

func (f *pgFixture) technicianCtx() context.Context {
	return f.as(&appctx.UserContext{
		UserID:       "tech-1",
		TechnicianID: f.technicianID.String(),
		Role:         string(security.RoleTechnician),
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPostgres_ReceiptIssueApprove(t *testing.T) {
	db := setupDB(t)
	f := newPGFixture(t, db)
	ctx := f.adminCtx()

	receipt, err := f.Movements.CreateReceipt(ctx, movement.Request{
		Destination: entity.Warehouse(id.Nil()),
		Reference:   "Agro Supplies",
		Lines: []movement.LineRequest{{
			ItemID: f.item.ID, Qty: dec("10"), Unit: "L", Rate: dec("450"), BatchNo: "IMI-01",
		}},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 1)
	sourceBatch := receipt.Lines[0].BatchID

	issue, err := f.Movements.CreateIssue(ctx, movement.Request{
		Source:      entity.Warehouse(id.Nil()),
		Destination: entity.Technician(f.technicianID),
		Lines:       []movement.LineRequest{{ItemID: f.item.ID, Qty: dec("2500"), Unit: "ML"}},
	})
	require.NoError(t, err)
	assert.Equal(t, movement.StatusAwaitingApproval, issue.Status)
	require.NotNil(t, issue.ApprovalID)

	b, err := f.batches.GetByID(ctx, f.companyID, sourceBatch)
	require.NoError(t, err)
	assert.True(t, dec("7.5").Equal(b.CurrentQty), b.CurrentQty.String())

	resolved, err := f.Approvals.Approve(f.technicianCtx(), *issue.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, resolved.Status)
	require.Len(t, resolved.Items, 1)
	require.NotNil(t, resolved.Items[0].DestinationBatchID)

	techBatch, err := f.batches.GetByID(ctx, f.companyID, *resolved.Items[0].DestinationBatchID)
	require.NoError(t, err)
	assert.Equal(t, "IMI-01", techBatch.BatchNo)
	assert.True(t, techBatch.Location.Equal(entity.Technician(f.technicianID)))
	assert.True(t, dec("2.5").Equal(techBatch.CurrentQty))

	stored, err := f.Movements.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StatusApproved, stored.Status)

	for _, batchID := range []id.ID{sourceBatch, techBatch.ID} {
		rec, err := f.Ledger.Reconcile(ctx, f.companyID, batchID)
		require.NoError(t, err)
		assert.True(t, rec.Balanced, "batch %s: current %s, ledger %s", batchID, rec.CurrentQty, rec.LedgerQty)
	}

	var pending int
	require.NoError(t, db.pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM sys_outbox WHERE status = 'pending'`).Scan(&pending))
	assert.GreaterOrEqual(t, pending, 3)
}

func TestPostgres_RejectRestoresSource(t *testing.T) {
	db := setupDB(t)
	f := newPGFixture(t, db)
	ctx := f.adminCtx()

	seeded := &batch.Batch{
		CompanyID:  f.companyID,
		ItemID:     f.item.ID,
		BatchNo:    "OPEN-1",
		CurrentQty: dec("4"),
		Rate:       dec("400"),
		GSTRate:    f.item.GSTRate,
		Location:   entity.Branch(f.mainBranchID),
	}
	require.NoError(t, f.batches.SeedBatch(ctx, f.ledgerRepo, seeded, "seed"))

	issue, err := f.Movements.CreateIssue(ctx, movement.Request{
		Source:      entity.Branch(f.mainBranchID),
		Destination: entity.Technician(f.technicianID),
		Lines:       []movement.LineRequest{{ItemID: f.item.ID, Qty: dec("3"), Unit: "L"}},
	})
	require.NoError(t, err)

	_, err = f.Approvals.Reject(f.technicianCtx(), *issue.ApprovalID, "wrong product")
	require.NoError(t, err)

	b, err := f.batches.GetByID(ctx, f.companyID, seeded.ID)
	require.NoError(t, err)
	assert.True(t, dec("4").Equal(b.CurrentQty))

	_, err = f.Approvals.Approve(f.technicianCtx(), *issue.ApprovalID)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyProcessed), "got %v", err)
}

func TestBatchRepo_DecrementGuardAndFEFOOrder(t *testing.T) {
	db := setupDB(t)
	f := newPGFixture(t, db)
	ctx := f.adminCtx()
	loc := entity.Branch(f.mainBranchID)

	later := time.Now().UTC().AddDate(0, 6, 0).Truncate(24 * time.Hour)
	sooner := time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	for _, b := range []*batch.Batch{
		{BatchNo: "NO-EXPIRY"},
		{BatchNo: "LATER", ExpiryDate: &later},
		{BatchNo: "SOONER", ExpiryDate: &sooner},
	} {
		b.CompanyID, b.ItemID, b.Location = f.companyID, f.item.ID, loc
		b.CurrentQty, b.Rate, b.GSTRate = dec("5"), dec("100"), f.item.GSTRate
		require.NoError(t, f.batches.SeedBatch(ctx, f.ledgerRepo, b, "seed"))
	}

	var locked []*batch.Batch
	err := db.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		locked, err = f.batches.ListForUpdate(ctx, f.companyID, f.item.ID, loc)
		return err
	})
	require.NoError(t, err)
	require.Len(t, locked, 3)
	assert.Equal(t, []string{"SOONER", "LATER", "NO-EXPIRY"},
		[]string{locked[0].BatchNo, locked[1].BatchNo, locked[2].BatchNo})

	err = db.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		after, ok, err := f.batches.Decrement(ctx, locked[0].ID, dec("6"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, dec("5").Equal(after.CurrentQty))

		after, ok, err = f.batches.Decrement(ctx, locked[0].ID, dec("5"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, after.CurrentQty.IsZero())
		return nil
	})
	require.NoError(t, err)

	upserted, created, err := f.batches.Upsert(ctx, f.companyID, locked[1].Key(), dec("1.25"), locked[1].Meta())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, locked[1].ID, upserted.ID)
	assert.True(t, dec("6.25").Equal(upserted.CurrentQty))
}

func TestIdempotencyStore_AcquireCompleteReplay(t *testing.T) {
	db := setupDB(t)
	store := postgres.NewIdempotencyStore(db.txm, time.Hour)
	ctx := context.Background()

	replay, err := store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/movements/issue", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/movements/issue", "hash-a")
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency), "got %v", err)

	_, err = store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/movements/issue", "hash-b")
	assert.Error(t, err)

	require.NoError(t, store.CompleteKey(ctx, "key-1", "user-1", 201, "application/json", map[string]string{"number": "MI-2026-00001"}))

	replay, err = store.AcquireKey(ctx, "key-1", "user-1", "POST /api/v1/movements/issue", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"number":"MI-2026-00001"}`, string(replay.Body))

	// Keys are scoped per user.
	replay, err = store.AcquireKey(ctx, "key-1", "user-2", "POST /api/v1/movements/issue", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay)
}
