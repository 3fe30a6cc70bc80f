package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// ErrRecordAlreadyDecided is returned when a decision targets a record that is no longer pending
var ErrRecordAlreadyDecided = errors.New("approval record already decided")

// Getters return (nil, nil) when the entity does not exist.

// CompanyRepository defines persistence operations for Company
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
}

// EmployeeRepository defines persistence operations for Employee
type EmployeeRepository interface {
	Create(ctx context.Context, employee *entity.Employee) error
	GetByID(ctx context.Context, id int64) (*entity.Employee, error)
	GetByEmail(ctx context.Context, email string) (*entity.Employee, error)
	Update(ctx context.Context, employee *entity.Employee) error

	// FirstByRole returns the employee with the lowest ID holding role in the company
	FirstByRole(ctx context.Context, companyID int64, role string) (*entity.Employee, error)

	ListByCompany(ctx context.Context, companyID int64) ([]*entity.Employee, error)
	ListByManager(ctx context.Context, managerID int64) ([]*entity.Employee, error)
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)

	// Update persists status, stall flag and comments
	Update(ctx context.Context, expense *entity.Expense) error

	ListByEmployees(ctx context.Context, employeeIDs []int64) ([]*entity.Expense, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error)
}

// ApprovalRepository defines persistence operations for the approval ledger
type ApprovalRepository interface {
	Create(ctx context.Context, record *entity.ApprovalRecord) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRecord, error)

	// ListByExpense returns all records for an expense ordered by step then ID
	ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error)

	// ListPendingByApprover returns the approver's undecided records
	ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error)

	// Decide sets the action exactly once; returns ErrRecordAlreadyDecided otherwise
	Decide(ctx context.Context, id int64, action, comments string, decidedAt time.Time) error

	// DeletePending cancels every undecided record of an expense
	DeletePending(ctx context.Context, expenseID int64) (int64, error)
}

// WorkflowRepository stores one workflow configuration per company
type WorkflowRepository interface {
	// Get returns (nil, nil) when the company has no workflow
	Get(ctx context.Context, companyID int64) (*workflow.Config, error)
	Save(ctx context.Context, companyID int64, cfg *workflow.Config) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on a key across goroutines (and processes, for distributed implementations)
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
