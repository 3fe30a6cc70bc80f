// Package resolver maps workflow step descriptors to concrete approvers.
package resolver

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// ApproverResolver resolves the approver for one step of a submitter's workflow
type ApproverResolver interface {
	// Resolve returns nil when the step has no approver. Errors are persistence failures only.
	Resolve(ctx context.Context, submitter *entity.Employee, step workflow.Step, company *entity.Company) (*entity.Employee, error)
}

type resolver struct {
	employees port.EmployeeRepository
}

// New creates an ApproverResolver backed by the employee roster
func New(employees port.EmployeeRepository) ApproverResolver {
	return &resolver{employees: employees}
}

func (r *resolver) Resolve(ctx context.Context, submitter *entity.Employee, step workflow.Step, company *entity.Company) (*entity.Employee, error) {
	switch step.Type {
	case workflow.StepManagerOfSubmitter:
		if submitter == nil || !submitter.HasManager() {
			return nil, nil
		}
		manager, err := r.employees.GetByID(ctx, *submitter.ManagerID)
		if err != nil {
			return nil, fmt.Errorf("resolve manager of %d: %w", submitter.ID, err)
		}
		return manager, nil

	case workflow.StepRole:
		approver, err := r.employees.FirstByRole(ctx, company.ID, step.Role)
		if err != nil {
			return nil, fmt.Errorf("resolve role %s: %w", step.Role, err)
		}
		return approver, nil

	case workflow.StepUser:
		approver, err := r.employees.GetByID(ctx, step.UserID)
		if err != nil {
			return nil, fmt.Errorf("resolve user %d: %w", step.UserID, err)
		}
		// Approvers outside the submitter's company are never eligible
		if approver == nil || approver.CompanyID != company.ID {
			return nil, nil
		}
		return approver, nil

	default:
		return nil, nil
	}
}
