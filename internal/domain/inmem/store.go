// Package inmem provides in-memory repositories and a snapshotting transaction
// manager. Domain tests and local tooling use it in place of PostgreSQL.
package inmem

import (
	"context"
	"sync"
	"time"

	"pestctl/internal/core/id"
	"pestctl/internal/core/tx"
	"pestctl/internal/domain/approval"
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/events"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/domain/movement"
)

// AuditRecord is one entry written through the audit logger.
type AuditRecord struct {
	EntityType string
	EntityID   id.ID
	Action     string
	Changes    map[string]any
}

type state struct {
	items       map[id.ID]*catalog.Item
	mainBranch  map[id.ID]id.ID // company -> branch
	branches    map[id.ID]id.ID // branch -> company
	technicians map[id.ID]id.ID // technician -> company
	batches     map[id.ID]*batch.Batch
	ledger      []*ledger.Entry
	seq         int64
	movements   map[id.ID]*movement.Movement
	approvals   map[id.ID]*approval.Approval
	outbox      []events.Event
	audit       []AuditRecord
}

func newState() *state {
	return &state{
		items:       make(map[id.ID]*catalog.Item),
		mainBranch:  make(map[id.ID]id.ID),
		branches:    make(map[id.ID]id.ID),
		technicians: make(map[id.ID]id.ID),
		batches:     make(map[id.ID]*batch.Batch),
		movements:   make(map[id.ID]*movement.Movement),
		approvals:   make(map[id.ID]*approval.Approval),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.items {
		c.items[k] = v.Clone()
	}
	for k, v := range s.mainBranch {
		c.mainBranch[k] = v
	}
	for k, v := range s.branches {
		c.branches[k] = v
	}
	for k, v := range s.technicians {
		c.technicians[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v.Clone()
	}
	c.ledger = append([]*ledger.Entry(nil), s.ledger...)
	c.seq = s.seq
	for k, v := range s.movements {
		c.movements[k] = cloneMovement(v)
	}
	for k, v := range s.approvals {
		c.approvals[k] = v.Clone()
	}
	c.outbox = append([]events.Event(nil), s.outbox...)
	c.audit = append([]AuditRecord(nil), s.audit...)
	return c
}

// Store holds every in-memory table.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock overrides the clock used for created_at stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

type txKey struct{}

// TxManager runs transactions one at a time and restores the pre-transaction
// state when fn fails.
type TxManager struct {
	store *Store
}

var _ tx.Manager = (*TxManager)(nil)

// TxManager returns the store's transaction manager.
func (s *Store) TxManager() *TxManager { return &TxManager{store: s} }

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	m.store.mu.RLock()
	snapshot := m.store.st.clone()
	m.store.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.store.mu.Lock()
		m.store.st = snapshot
		m.store.mu.Unlock()
		return err
	}
	return nil
}

// Events returns the outbox contents in publish order.
func (s *Store) Events() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event(nil), s.st.outbox...)
}

// AuditTrail returns the audit entries in write order.
func (s *Store) AuditTrail() []AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditRecord(nil), s.st.audit...)
}

// Outbox returns an events.Publisher writing into the store.
func (s *Store) Outbox() events.Publisher { return outbox{s} }

type outbox struct{ s *Store }

func (o outbox) Publish(_ context.Context, e events.Event) error {
	o.s.mu.Lock()
	o.s.st.outbox = append(o.s.st.outbox, e)
	o.s.mu.Unlock()
	return nil
}
