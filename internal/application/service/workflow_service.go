package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// WorkflowService reads and replaces a company's approval workflow
type WorkflowService interface {
	GetWorkflowConfig(ctx context.Context, p Principal) (*domainwf.Config, error)
	SetWorkflowConfig(ctx context.Context, p Principal, cfg *domainwf.Config) (*domainwf.Config, error)
}

type workflowServiceImpl struct {
	workflows port.WorkflowRepository
	employees port.EmployeeRepository
	logger    Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(workflows port.WorkflowRepository, employees port.EmployeeRepository, logger Logger) WorkflowService {
	return &workflowServiceImpl{
		workflows: workflows,
		employees: employees,
		logger:    logger,
	}
}

func (s *workflowServiceImpl) GetWorkflowConfig(ctx context.Context, p Principal) (*domainwf.Config, error) {
	const op = "workflow.GetConfig"

	if err := RequireRole(op, p, entity.RoleAdmin); err != nil {
		return nil, err
	}

	cfg, err := s.workflows.Get(ctx, p.CompanyID)
	if err != nil {
		s.logger.Error("Failed to load workflow", "error", err, "company_id", p.CompanyID)
		return nil, apperr.Internal(op, "failed to load workflow", err)
	}
	if cfg == nil {
		return nil, apperr.NotFound(op, fmt.Sprintf("company %d has no workflow", p.CompanyID))
	}
	return cfg, nil
}

// SetWorkflowConfig validates and stores a new configuration. Expenses already in flight
// pick it up at their next decision.
func (s *workflowServiceImpl) SetWorkflowConfig(ctx context.Context, p Principal, cfg *domainwf.Config) (*domainwf.Config, error) {
	const op = "workflow.SetConfig"

	if err := RequireRole(op, p, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if err := cfg.Validate(entity.IsValidRole); err != nil {
		return nil, apperr.ValidationWrap(op, "invalid workflow configuration", err)
	}

	// user steps and specific approvers must be members of this company
	for _, id := range cfg.UserIDs() {
		employee, err := s.employees.GetByID(ctx, id)
		if err != nil {
			return nil, apperr.Internal(op, "failed to load employee", err)
		}
		if employee == nil || employee.CompanyID != p.CompanyID {
			return nil, apperr.Validation(op, fmt.Sprintf("employee %d is not a member of company %d", id, p.CompanyID))
		}
	}

	if err := s.workflows.Save(ctx, p.CompanyID, cfg); err != nil {
		s.logger.Error("Failed to save workflow", "error", err, "company_id", p.CompanyID)
		return nil, apperr.Internal(op, "failed to save workflow", err)
	}

	s.logger.Info("Workflow updated",
		"company_id", p.CompanyID,
		"type", cfg.Type,
		"steps", len(cfg.Steps),
		"admin_id", p.EmployeeID,
	)
	return cfg, nil
}
