package inmem

import (
	"pestctl/internal/app"
	"pestctl/internal/core/numerator"
	"pestctl/internal/core/security"
)

// Engine is the movement engine wired on top of a Store.
type Engine struct {
	*app.Engine
	Store *Store
}

// NewEngine wires every domain service to the store. A nil authorizer uses
// the default movement rules.
func NewEngine(store *Store, authz security.MovementAuthorizer) *Engine {
	return &Engine{
		Store: store,
		Engine: app.NewEngine(app.Deps{
			Items:      store.Items(),
			Batches:    store.Batches(),
			Ledger:     store.Ledger(),
			Movements:  store.Movements(),
			Approvals:  store.Approvals(),
			Directory:  store.Directory(),
			Numerator:  numerator.NewSequenceGenerator(),
			Publisher:  store.Outbox(),
			Auditor:    store.Auditor(),
			TxManager:  store.TxManager(),
			Authorizer: authz,
		}),
	}
}
