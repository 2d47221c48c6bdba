// Package ledger provides the append-only stock ledger.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// MovementType classifies a ledger row.
type MovementType string

const (
	TypeReceipt       MovementType = "RECEIPT"
	TypeIssue         MovementType = "ISSUE"
	TypeIssueReversal MovementType = "ISSUE_REVERSAL"
	TypeIssueAccepted MovementType = "ISSUE_ACCEPTED"
	TypeTransferOut   MovementType = "TRANSFER_OUT"
	TypeTransferIn    MovementType = "TRANSFER_IN"
	TypeReturnOut     MovementType = "RETURN_OUT"
	TypeReturnIn      MovementType = "RETURN_IN"
	TypeConsumption   MovementType = "CONSUMPTION"
)

// Entry is one immutable stock change of a batch. Exactly one of QtyIn and
// QtyOut is positive. BalanceQty is the batch quantity after the change.
type Entry struct {
	ID             id.ID           `db:"id" json:"id"`
	Seq            int64           `db:"seq" json:"seq"`
	CompanyID      id.ID           `db:"company_id" json:"company_id"`
	ItemID         id.ID           `db:"item_id" json:"item_id"`
	BatchID        id.ID           `db:"batch_id" json:"batch_id"`
	Location       entity.Location `db:"-" json:"location"`
	MovementType   MovementType    `db:"movement_type" json:"movement_type"`
	MovementID     id.ID           `db:"movement_id" json:"movement_id"`
	MovementLineID *id.ID          `db:"movement_line_id" json:"movement_line_id,omitempty"`
	Date           time.Time       `db:"entry_date" json:"date"`
	QtyIn          decimal.Decimal `db:"qty_in" json:"qty_in"`
	QtyOut         decimal.Decimal `db:"qty_out" json:"qty_out"`
	BalanceQty     decimal.Decimal `db:"balance_qty" json:"balance_qty"`
	Rate           decimal.Decimal `db:"rate" json:"rate"`
	BalanceValue   decimal.Decimal `db:"balance_value" json:"balance_value"`
	Actor          string          `db:"actor" json:"actor"`
	Note           string          `db:"note" json:"note"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Delta is the signed quantity change of the entry.
func (e *Entry) Delta() decimal.Decimal {
	return e.QtyIn.Sub(e.QtyOut)
}

// Replay sums the deltas of entries. For the complete, seq-ordered history of
// one batch the result equals the batch's current quantity.
func Replay(entries []*Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Delta())
	}
	return total
}

// Filter selects ledger rows.
type Filter struct {
	CompanyID id.ID
	ItemID    *id.ID
	BatchID   *id.ID
	Location  *entity.Location
	From      *time.Time
	To        *time.Time
	domain.Page
}

// Reconciliation compares a batch with its ledger history.
type Reconciliation struct {
	BatchID    id.ID           `json:"batch_id"`
	CurrentQty decimal.Decimal `json:"current_qty"`
	LedgerQty  decimal.Decimal `json:"ledger_qty"`
	Entries    int             `json:"entries"`
	Balanced   bool            `json:"balanced"`
}
