package batch

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SelectFEFO allocates required from candidates, first-expiry-first-out.
//
// Candidates are ordered by expiry ascending with undated batches last, then
// by creation time. Empty and expired batches are skipped. The result holds
// the allocations in consumption order and the unmet remainder.
func SelectFEFO(candidates []*Batch, required decimal.Decimal, asOf time.Time) ([]Allocation, decimal.Decimal) {
	usable := make([]*Batch, 0, len(candidates))
	for _, b := range candidates {
		if !b.CurrentQty.IsPositive() || b.IsExpiredAt(asOf) {
			continue
		}
		usable = append(usable, b)
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return fefoLess(usable[i], usable[j])
	})

	remaining := required
	var allocations []Allocation
	for _, b := range usable {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(b.CurrentQty, remaining)
		allocations = append(allocations, Allocation{Batch: b, Qty: take})
		remaining = remaining.Sub(take)
	}

	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return allocations, remaining
}

func fefoLess(a, b *Batch) bool {
	switch {
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return true
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return false
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		ea, eb := dateOf(*a.ExpiryDate), dateOf(*b.ExpiryDate)
		if !ea.Equal(eb) {
			return ea.Before(eb)
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Available sums the quantity SelectFEFO could allocate from candidates.
func Available(candidates []*Batch, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, b := range candidates {
		if b.CurrentQty.IsPositive() && !b.IsExpiredAt(asOf) {
			total = total.Add(b.CurrentQty)
		}
	}
	return total
}
