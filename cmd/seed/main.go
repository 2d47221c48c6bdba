// Package main seeds a demo company: two branches, a technician, a few
// chemicals with unit conversions and opening stock.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/config"
	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/uom"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/internal/infrastructure/storage/postgres/catalog_repo"
	"pestctl/internal/infrastructure/storage/postgres/register_repo"
	"pestctl/pkg/logger"
)

// Fixed ids keep the seed re-runnable and let cmd/devtoken target the demo company.
var (
	companyID    = id.MustParse("01890000-0000-7000-8000-000000000001")
	mainBranchID = id.MustParse("01890000-0000-7000-8000-000000000010")
	eastBranchID = id.MustParse("01890000-0000-7000-8000-000000000011")
	technicianID = id.MustParse("01890000-0000-7000-8000-000000000020")
)

type demoItem struct {
	id          id.ID
	name        string
	baseUnit    string
	gst         int64
	conversions []uom.Conversion
	openingQty  string
	rate        string
	expiresIn   time.Duration
}

var demoItems = []demoItem{
	{
		id: id.MustParse("01890000-0000-7000-8000-000000000100"), name: "Cypermethrin 10% EC",
		baseUnit: "L", gst: 18, openingQty: "40", rate: "640", expiresIn: 540 * 24 * time.Hour,
		conversions: []uom.Conversion{{FromUnit: "L", ToUnit: "ML", Factor: decimal.NewFromInt(1000)}},
	},
	{
		id: id.MustParse("01890000-0000-7000-8000-000000000101"), name: "Fipronil 0.05% Gel",
		baseUnit: "KG", gst: 18, openingQty: "5", rate: "2100", expiresIn: 365 * 24 * time.Hour,
		conversions: []uom.Conversion{
			{FromUnit: "KG", ToUnit: "GRAM", Factor: decimal.NewFromInt(1000)},
			{FromUnit: "TUBE", ToUnit: "KG", Factor: decimal.RequireFromString("0.035")},
		},
	},
	{
		id: id.MustParse("01890000-0000-7000-8000-000000000102"), name: "Rodent bait station",
		baseUnit: "PCS", gst: 12, openingQty: "120", rate: "85",
		conversions: []uom.Conversion{{FromUnit: "BOX", ToUnit: "PCS", Factor: decimal.NewFromInt(24)}},
	},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	if err := seed(ctx, txManager, log); err != nil {
		log.Fatalw("seed failed", "error", err)
	}

	log.Infow("seed completed",
		"company_id", companyID,
		"main_branch_id", mainBranchID,
		"branch_id", eastBranchID,
		"technician_id", technicianID,
	)
}

func seed(ctx context.Context, txManager *postgres.TxManager, log *logger.Logger) error {
	dir := catalog_repo.NewDirectoryRepo(txManager)
	if err := dir.CreateBranch(ctx, companyID, mainBranchID, "Head office", true); err != nil {
		return err
	}
	if err := dir.CreateBranch(ctx, companyID, eastBranchID, "East branch", false); err != nil {
		return err
	}
	if err := dir.CreateTechnician(ctx, companyID, technicianID, &eastBranchID, "Demo technician"); err != nil {
		return err
	}

	items := catalog_repo.NewItemRepo(txManager)
	batches := register_repo.NewBatchRepo(txManager)
	ledgerRepo := register_repo.NewLedgerRepo(txManager)
	now := time.Now().UTC()

	for _, d := range demoItems {
		_, err := items.GetByID(ctx, companyID, d.id)
		if err == nil {
			log.Infow("item already seeded", "item", d.name)
			continue
		}
		if !apperror.HasCode(err, apperror.CodeNotFound) {
			return err
		}

		item := &catalog.Item{
			ID:          d.id,
			CompanyID:   companyID,
			Name:        d.name,
			Category:    "chemical",
			BaseUnit:    d.baseUnit,
			GSTRate:     decimal.NewFromInt(d.gst),
			Conversions: d.conversions,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if d.baseUnit == "PCS" {
			item.Category = "equipment"
		}
		item.Normalize()
		if err := item.Validate(ctx); err != nil {
			return fmt.Errorf("item %s: %w", d.name, err)
		}
		if err := items.Create(ctx, item); err != nil {
			return fmt.Errorf("create item %s: %w", d.name, err)
		}

		opening := &batch.Batch{
			CompanyID:  companyID,
			ItemID:     item.ID,
			BatchNo:    "OPENING",
			CurrentQty: decimal.RequireFromString(d.openingQty),
			Rate:       decimal.RequireFromString(d.rate),
			GSTRate:    item.GSTRate,
			Location:   entity.Branch(mainBranchID),
			CreatedAt:  now,
		}
		if d.expiresIn > 0 {
			expiry := now.Add(d.expiresIn).Truncate(24 * time.Hour)
			opening.ExpiryDate = &expiry
		}
		if err := batches.SeedBatch(ctx, ledgerRepo, opening, "seed"); err != nil {
			return fmt.Errorf("seed stock %s: %w", d.name, err)
		}
		log.Infow("item seeded", "item", d.name, "batch_id", opening.ID, "qty", opening.CurrentQty)
	}
	return nil
}
