// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// IDResponse contains only ID.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PageQuery contains limit/offset pagination parameters.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// ToPage converts the query into a domain page.
func (q PageQuery) ToPage() domain.Page {
	return domain.Page{Limit: q.Limit, Offset: q.Offset}.Normalize()
}

// DateRangeQuery filters by a closed time range.
type DateRangeQuery struct {
	From *time.Time `form:"from"`
	To   *time.Time `form:"to"`
}

// Location is the wire form of a tagged stock location.
// For WAREHOUSE the id may be omitted.
type Location struct {
	Kind string `json:"kind" binding:"required,location_kind"`
	ID   string `json:"id" binding:"omitempty,uuid"`
}

// ToEntity converts the DTO into a domain location.
func (l *Location) ToEntity(field string) (entity.Location, error) {
	if l == nil {
		return entity.Location{}, nil
	}
	kind, err := entity.ParseLocationKind(l.Kind)
	if err != nil {
		return entity.Location{}, apperror.NewValidation("unknown location kind").WithDetail("field", field+".kind")
	}
	if l.ID == "" {
		if kind != entity.LocationWarehouse {
			return entity.Location{}, apperror.NewValidation("location id is required").WithDetail("field", field+".id")
		}
		return entity.Location{Kind: kind}, nil
	}
	locID, err := id.Parse(l.ID)
	if err != nil {
		return entity.Location{}, apperror.NewValidation("invalid location id").WithDetail("field", field+".id")
	}
	return entity.Location{Kind: kind, ID: locID}, nil
}

// LocationQuery is a location passed as query parameters.
type LocationQuery struct {
	LocationKind string `form:"location_kind" binding:"omitempty,location_kind"`
	LocationID   string `form:"location_id" binding:"omitempty,uuid"`
}

// ToEntity returns nil when no location was given.
func (q LocationQuery) ToEntity() (*entity.Location, error) {
	if q.LocationKind == "" && q.LocationID == "" {
		return nil, nil
	}
	loc, err := (&Location{Kind: q.LocationKind, ID: q.LocationID}).ToEntity("location")
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// ParseOptionalID parses an optional id parameter.
func ParseOptionalID(field, s string) (*id.ID, error) {
	v, err := id.ParseOptional(s)
	if err != nil {
		return nil, apperror.NewValidation("invalid id").WithDetail("field", field)
	}
	return v, nil
}
