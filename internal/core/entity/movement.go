package entity

// MovementKind identifies one of the five stock movement operations.
type MovementKind string

const (
	MovementReceipt     MovementKind = "RECEIPT"
	MovementIssue       MovementKind = "ISSUE"
	MovementReturn      MovementKind = "RETURN"
	MovementTransfer    MovementKind = "TRANSFER"
	MovementConsumption MovementKind = "CONSUMPTION"
)

// NumberPrefix is the document number prefix of the kind.
func (k MovementKind) NumberPrefix() string {
	switch k {
	case MovementReceipt:
		return "GRN"
	case MovementIssue:
		return "MI"
	case MovementReturn:
		return "MR"
	case MovementTransfer:
		return "MT"
	case MovementConsumption:
		return "MC"
	}
	return "MV"
}

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementReceipt, MovementIssue, MovementReturn, MovementTransfer, MovementConsumption:
		return true
	}
	return false
}
