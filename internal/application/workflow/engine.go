package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Action is a decision an approver or administrator can take
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// IsValid reports whether a is approve or reject
func (a Action) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}

// recordAction maps a decision to the value stored on an approval record
func (a Action) recordAction() string {
	if a == ActionApprove {
		return entity.ActionApproved
	}
	return entity.ActionRejected
}

// WorkflowEngine drives expenses through their company's approval workflow.
//
// Every mutating call runs inside one transaction and is serialized per expense.
// Events produced by a call are published after its transaction commits.
type WorkflowEngine interface {
	// Submit persists a new expense and initiates its workflow
	Submit(ctx context.Context, expense *entity.Expense, submitter *entity.Employee, company *entity.Company) (*InitiateResult, error)

	// Initiate opens the first approval records for a persisted expense.
	// It joins the caller's transaction and returns events instead of publishing them.
	Initiate(ctx context.Context, expense *entity.Expense, cfg *domainwf.Config, submitter *entity.Employee, company *entity.Company) (*InitiateResult, error)

	// Decide records an approver's decision and advances the workflow
	Decide(ctx context.Context, recordID, actingApproverID int64, action Action, comments string) (*DecisionOutcome, error)

	// EvaluateExpense re-runs the conditional rule for a parallel expense. Idempotent.
	EvaluateExpense(ctx context.Context, expenseID int64, cfg *domainwf.Config) (*DecisionOutcome, error)

	// Override finalizes an expense directly and cancels its pending records
	Override(ctx context.Context, expenseID int64, action Action, comments string) (*DecisionOutcome, error)
}

// InitiateResult describes the state of an expense right after submission
type InitiateResult struct {
	Expense *entity.Expense
	Records []*entity.ApprovalRecord
	Events  []*event.Event
}

// DecisionOutcome describes what a decision or override changed
type DecisionOutcome struct {
	Expense *entity.Expense

	// Record is the decided record; nil for overrides and standalone evaluations
	Record *entity.ApprovalRecord

	// Created holds records opened by this call
	Created []*entity.ApprovalRecord

	// Cancelled counts pending records removed because the expense became terminal
	Cancelled int64

	// Finalized is true when this call moved the expense to a terminal status
	Finalized bool

	Events []*event.Event
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
