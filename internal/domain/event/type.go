package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted  Type = "expense.submitted"
	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalDecided   Type = "approval.decided"
	TypeExpenseApproved   Type = "expense.approved"
	TypeExpenseRejected   Type = "expense.rejected"
	TypeExpenseStalled    Type = "expense.stalled"
	TypeExpenseOverridden Type = "expense.overridden"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeApprovalRequested,
		TypeApprovalDecided,
		TypeExpenseApproved,
		TypeExpenseRejected,
		TypeExpenseStalled,
		TypeExpenseOverridden:
		return true
	default:
		return false
	}
}
