// Package entity provides the shared vocabulary of the engine:
// stock locations and movement kinds.
package entity

import (
	"fmt"
	"strings"

	"pestctl/internal/core/id"
)

// LocationKind tags a Location.
type LocationKind string

const (
	// LocationNone marks an absent side of a movement (receipt source, consumption destination).
	LocationNone       LocationKind = ""
	LocationCompany    LocationKind = "COMPANY"
	LocationBranch     LocationKind = "BRANCH"
	LocationTechnician LocationKind = "TECHNICIAN"
	// LocationWarehouse is a presentation alias of the company's main branch.
	// It never reaches the batch store unresolved.
	LocationWarehouse LocationKind = "WAREHOUSE"
)

// Valid reports whether k is one of the four concrete kinds.
func (k LocationKind) Valid() bool {
	switch k {
	case LocationCompany, LocationBranch, LocationTechnician, LocationWarehouse:
		return true
	}
	return false
}

// ParseLocationKind normalizes and validates a kind string.
func ParseLocationKind(s string) (LocationKind, error) {
	k := LocationKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return LocationNone, fmt.Errorf("unknown location kind %q", s)
	}
	return k, nil
}

// Location is a tagged (kind, id) pair embedded wherever stock is tracked.
// For WAREHOUSE the id is the owning company.
type Location struct {
	Kind LocationKind `json:"kind"`
	ID   id.ID        `json:"id"`
}

// Company returns a company-level store location.
func Company(companyID id.ID) Location { return Location{Kind: LocationCompany, ID: companyID} }

// Branch returns a branch store location.
func Branch(branchID id.ID) Location { return Location{Kind: LocationBranch, ID: branchID} }

// Technician returns a technician's personal stock location.
func Technician(technicianID id.ID) Location {
	return Location{Kind: LocationTechnician, ID: technicianID}
}

// Warehouse returns the alias for the company's main branch.
func Warehouse(companyID id.ID) Location { return Location{Kind: LocationWarehouse, ID: companyID} }

// IsZero reports whether the location is absent.
func (l Location) IsZero() bool {
	return l.Kind == LocationNone && id.IsNil(l.ID)
}

// Equal compares kind and id.
func (l Location) Equal(o Location) bool {
	return l.Kind == o.Kind && l.ID == o.ID
}

func (l Location) String() string {
	if l.IsZero() {
		return "NONE"
	}
	return string(l.Kind) + ":" + l.ID.String()
}
