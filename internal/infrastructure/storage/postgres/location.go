package postgres

import (
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
)

// LocationArgs splits a location into its kind and id column values.
// An absent location is stored as ('', NULL).
func LocationArgs(l entity.Location) (string, *id.ID) {
	if l.IsZero() {
		return "", nil
	}
	v := l.ID
	return string(l.Kind), &v
}

// JoinLocation rebuilds a location from its columns.
func JoinLocation(kind string, locID *id.ID) entity.Location {
	if kind == "" || locID == nil {
		return entity.Location{}
	}
	return entity.Location{Kind: entity.LocationKind(kind), ID: *locID}
}
