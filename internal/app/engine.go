// Package app wires the domain services of the engine on top of a set of
// repositories. cmd/server, the Postgres integration tests and the in-memory
// store all build their engine here.
package app

import (
	"pestctl/internal/core/numerator"
	"pestctl/internal/core/security"
	"pestctl/internal/core/tx"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/audit"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/events"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/domain/location"
	"pestctl/internal/domain/movement"
	"pestctl/internal/domain/posting"
)

// Deps are the storage-level collaborators of the engine.
type Deps struct {
	Items catalog.Repository
	// ItemReader serves item lookups on the hot path. Defaults to Items.
	ItemReader catalog.Reader
	Batches    batch.Repository
	Ledger     ledger.Repository
	Movements  movement.Repository
	Approvals  approval.Repository
	Directory  location.Directory

	Numerator  numerator.Generator
	Publisher  events.Publisher
	Auditor    audit.Logger
	TxManager  tx.Manager
	Authorizer security.MovementAuthorizer
}

// Engine groups the domain services.
type Engine struct {
	Catalog   *catalog.Service
	Batches   *batch.Store
	Ledger    *ledger.Service
	Posting   *posting.Engine
	Approvals *approval.Service
	Movements *movement.Processor
}

// NewEngine wires every domain service. A nil authorizer uses the default
// movement rules.
func NewEngine(d Deps) *Engine {
	if d.Authorizer == nil {
		d.Authorizer = security.MustMovementPolicy(security.DefaultMovementRules())
	}
	if d.ItemReader == nil {
		d.ItemReader = d.Items
	}

	batches := batch.NewStore(d.Batches)
	postingEngine := posting.NewEngine(batches, d.Ledger)

	approvals := approval.NewService(approval.Deps{
		Repo:      d.Approvals,
		Issues:    movement.NewIssueUpdater(d.Movements),
		Batches:   batches,
		Posting:   postingEngine,
		Items:     d.ItemReader,
		Auditor:   d.Auditor,
		Publisher: d.Publisher,
		TxManager: d.TxManager,
	})

	return &Engine{
		Catalog:   catalog.NewService(d.Items, d.ItemReader, d.TxManager),
		Batches:   batches,
		Ledger:    ledger.NewService(d.Ledger, d.Batches),
		Posting:   postingEngine,
		Approvals: approvals,
		Movements: movement.NewProcessor(movement.Deps{
			Repo:       d.Movements,
			Items:      d.ItemReader,
			Resolver:   location.NewResolver(d.Directory),
			Authorizer: d.Authorizer,
			Batches:    batches,
			Posting:    postingEngine,
			Approvals:  approvals,
			Numerator:  d.Numerator,
			Publisher:  d.Publisher,
			Auditor:    d.Auditor,
			TxManager:  d.TxManager,
		}),
	}
}
