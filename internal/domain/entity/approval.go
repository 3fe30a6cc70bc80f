package entity

import "time"

// ApprovalRecord is one approver's slot for an expense.
// Step is 1-based and only meaningful for sequential workflows.
type ApprovalRecord struct {
	ID         int64      `json:"id"`
	ExpenseID  int64      `json:"expense_id"`
	ApproverID int64      `json:"approver_id"`
	Step       int        `json:"step"`
	Action     string     `json:"action,omitempty"`
	Comments   string     `json:"comments,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsPending reports whether no decision has been recorded yet
func (r *ApprovalRecord) IsPending() bool {
	return r.Action == ActionPending
}

// PendingApproval is an inbox row for an approver
type PendingApproval struct {
	Record        *ApprovalRecord `json:"record"`
	Expense       *Expense        `json:"expense"`
	EmployeeEmail string          `json:"employee_email"`
}
