package movement

import (
	"strings"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
)

func validateRequest(kind entity.MovementKind, req Request) error {
	if len(req.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for i, l := range req.Lines {
		if id.IsNil(l.ItemID) {
			return apperror.NewValidation("item is required").WithDetail("line", i)
		}
		if !l.Qty.IsPositive() {
			return apperror.NewValidation("quantity must be positive").WithDetail("line", i)
		}
		if strings.TrimSpace(l.Unit) == "" {
			return apperror.NewValidation("unit is required").WithDetail("line", i)
		}
		if kind != entity.MovementReceipt {
			continue
		}
		if l.BatchID != nil {
			return apperror.NewValidation("receipts create batches and cannot name one").WithDetail("line", i)
		}
		if l.Rate.IsNegative() {
			return apperror.NewValidation("rate must not be negative").WithDetail("line", i)
		}
		if l.GSTRate != nil && l.GSTRate.IsNegative() {
			return apperror.NewValidation("gst rate must not be negative").WithDetail("line", i)
		}
		if l.MfgDate != nil && l.ExpiryDate != nil && l.ExpiryDate.Before(*l.MfgDate) {
			return apperror.NewValidation("expiry date precedes manufacture date").WithDetail("line", i)
		}
	}
	return nil
}

// checkLocations enforces which sides a movement kind has. Which location
// kinds may be combined is decided by the authorization table.
func checkLocations(kind entity.MovementKind, src, dst entity.Location) error {
	needSource := kind != entity.MovementReceipt
	needDestination := kind != entity.MovementConsumption

	switch {
	case needSource && src.IsZero():
		return apperror.NewValidation("source location is required").WithDetail("field", "source")
	case !needSource && !src.IsZero():
		return apperror.NewValidation("receipts have no source location").WithDetail("field", "source")
	case needDestination && dst.IsZero():
		return apperror.NewValidation("destination location is required").WithDetail("field", "destination")
	case !needDestination && !dst.IsZero():
		return apperror.NewValidation("consumption has no destination").WithDetail("field", "destination")
	case needSource && needDestination && src.Equal(dst):
		return apperror.NewValidation("source and destination must differ")
	case kind == entity.MovementConsumption && src.Kind != entity.LocationTechnician:
		return apperror.NewValidation("consumption draws from a technician's stock").WithDetail("field", "source")
	}
	return nil
}
