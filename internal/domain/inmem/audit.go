package inmem

import (
	"context"

	"pestctl/internal/core/id"
	"pestctl/internal/domain/audit"
)

// Auditor returns an audit.Logger writing into the store.
func (s *Store) Auditor() audit.Logger { return auditor{s} }

type auditor struct{ s *Store }

func (a auditor) LogChange(_ context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.st.audit = append(a.s.st.audit, AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     string(action),
		Changes:    changes,
	})
	return nil
}
