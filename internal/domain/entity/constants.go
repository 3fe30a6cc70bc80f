package entity

// Expense status constants
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Employee role constants
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// Approval record action constants. An empty action means the record is pending.
const (
	ActionPending  = ""
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

// Stall reasons recorded on an expense that cannot make forward progress
const (
	StallNoWorkflow         = "no_workflow"
	StallUnresolvedApprover = "unresolved_approver"
	StallNoApprovers        = "no_resolvable_approvers"
	StallUnknownType        = "unknown_workflow_type"
	StallInconclusiveVote   = "inconclusive_vote"
)

// IsValidRole reports whether r is a known employee role
func IsValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}
