package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// ErrManagerCycle is returned when a manager assignment would make an employee their own superior
var ErrManagerCycle = errors.New("manager assignment would create a cycle")

// CreateCompanyRequest registers a company together with its first administrator
type CreateCompanyRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	Country    string `json:"country" validate:"required,max=100"`
	AdminEmail string `json:"admin_email" validate:"required,email"`
	AdminName  string `json:"admin_name" validate:"required,max=200"`
}

// CompanyCreated is the result of company registration
type CompanyCreated struct {
	Company  *entity.Company  `json:"company"`
	Admin    *entity.Employee `json:"admin"`
	Workflow *domainwf.Config `json:"workflow"`
}

// CreateEmployeeRequest adds an employee to the caller's company
type CreateEmployeeRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=200"`
	Role       string `json:"role" validate:"required,oneof=admin manager employee"`
	ManagerID  *int64 `json:"manager_id"`
	LarkOpenID string `json:"lark_open_id" validate:"omitempty,max=64"`
}

// UpdateEmployeeRequest changes an employee's role or manager.
// A nil field is left unchanged; a ManagerID of 0 clears the manager.
type UpdateEmployeeRequest struct {
	Role       *string `json:"role" validate:"omitempty,oneof=admin manager employee"`
	ManagerID  *int64  `json:"manager_id" validate:"omitempty,min=0"`
	LarkOpenID *string `json:"lark_open_id" validate:"omitempty,max=64"`
}

// CompanyService manages companies and their employee rosters
type CompanyService interface {
	CreateCompany(ctx context.Context, req CreateCompanyRequest) (*CompanyCreated, error)
	CreateEmployee(ctx context.Context, p Principal, req CreateEmployeeRequest) (*entity.Employee, error)
	UpdateEmployee(ctx context.Context, p Principal, employeeID int64, req UpdateEmployeeRequest) (*entity.Employee, error)
	ListEmployees(ctx context.Context, p Principal) ([]*entity.Employee, error)

	// GetEmployee loads an employee by ID; used to establish the caller's identity
	GetEmployee(ctx context.Context, id int64) (*entity.Employee, error)
}

type companyServiceImpl struct {
	companies port.CompanyRepository
	employees port.EmployeeRepository
	workflows port.WorkflowRepository
	countries port.CountryResolver
	txManager port.TransactionManager
	logger    Logger
	now       func() time.Time
}

// NewCompanyService creates a new CompanyService
func NewCompanyService(
	companies port.CompanyRepository,
	employees port.EmployeeRepository,
	workflows port.WorkflowRepository,
	countries port.CountryResolver,
	txManager port.TransactionManager,
	logger Logger,
) CompanyService {
	return &companyServiceImpl{
		companies: companies,
		employees: employees,
		workflows: workflows,
		countries: countries,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateCompany derives the company currency from its country and seeds the default workflow
func (s *companyServiceImpl) CreateCompany(ctx context.Context, req CreateCompanyRequest) (*CompanyCreated, error) {
	const op = "company.Create"

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}

	currency, err := s.countries.CurrencyForCountry(ctx, req.Country)
	if err != nil {
		if errors.Is(err, port.ErrUnknownCountry) {
			return nil, apperr.ValidationWrap(op, fmt.Sprintf("no currency known for country %q", req.Country), err)
		}
		s.logger.Error("Failed to resolve country currency", "error", err, "country", req.Country)
		return nil, apperr.External(op, "country lookup failed", err)
	}

	if err := s.ensureEmailFree(ctx, op, req.AdminEmail); err != nil {
		return nil, err
	}

	now := s.now()
	result := &CompanyCreated{
		Company: &entity.Company{
			Name:      req.Name,
			Country:   req.Country,
			Currency:  strings.ToUpper(currency),
			CreatedAt: now,
		},
		Workflow: domainwf.DefaultConfig(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.companies.Create(txCtx, result.Company); err != nil {
			return fmt.Errorf("create company: %w", err)
		}

		result.Admin = &entity.Employee{
			CompanyID: result.Company.ID,
			Email:     req.AdminEmail,
			Name:      req.AdminName,
			Role:      entity.RoleAdmin,
			CreatedAt: now,
		}
		if err := s.employees.Create(txCtx, result.Admin); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}

		if err := s.workflows.Save(txCtx, result.Company.ID, result.Workflow); err != nil {
			return fmt.Errorf("save default workflow: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create company", "error", err, "name", req.Name)
		return nil, apperr.Internal(op, "failed to create company", err)
	}

	s.logger.Info("Company created",
		"company_id", result.Company.ID,
		"currency", result.Company.Currency,
		"admin_id", result.Admin.ID,
	)
	return result, nil
}

func (s *companyServiceImpl) CreateEmployee(ctx context.Context, p Principal, req CreateEmployeeRequest) (*entity.Employee, error) {
	const op = "employee.Create"

	if err := RequireRole(op, p, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, op, req.Email); err != nil {
		return nil, err
	}

	employee := &entity.Employee{
		CompanyID:  p.CompanyID,
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		LarkOpenID: req.LarkOpenID,
		CreatedAt:  s.now(),
	}

	if req.ManagerID != nil && *req.ManagerID != 0 {
		if _, err := s.loadManager(ctx, op, p.CompanyID, *req.ManagerID); err != nil {
			return nil, err
		}
		managerID := *req.ManagerID
		employee.ManagerID = &managerID
	}

	if err := s.employees.Create(ctx, employee); err != nil {
		s.logger.Error("Failed to create employee", "error", err, "company_id", p.CompanyID)
		return nil, apperr.Internal(op, "failed to create employee", err)
	}

	s.logger.Info("Employee created", "employee_id", employee.ID, "company_id", p.CompanyID, "role", employee.Role)
	return employee, nil
}

func (s *companyServiceImpl) UpdateEmployee(ctx context.Context, p Principal, employeeID int64, req UpdateEmployeeRequest) (*entity.Employee, error) {
	const op = "employee.Update"

	if err := RequireRole(op, p, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}

	employee, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if err := requireSameCompany(op, p, employee.CompanyID); err != nil {
		return nil, err
	}

	if req.Role != nil {
		employee.Role = *req.Role
	}
	if req.LarkOpenID != nil {
		employee.LarkOpenID = *req.LarkOpenID
	}
	if req.ManagerID != nil {
		if *req.ManagerID == 0 {
			employee.ManagerID = nil
		} else {
			if err := s.checkManagerAssignment(ctx, op, employee, *req.ManagerID); err != nil {
				return nil, err
			}
			managerID := *req.ManagerID
			employee.ManagerID = &managerID
		}
	}

	if err := s.employees.Update(ctx, employee); err != nil {
		s.logger.Error("Failed to update employee", "error", err, "employee_id", employeeID)
		return nil, apperr.Internal(op, "failed to update employee", err)
	}

	s.logger.Info("Employee updated", "employee_id", employee.ID, "role", employee.Role)
	return employee, nil
}

func (s *companyServiceImpl) ListEmployees(ctx context.Context, p Principal) ([]*entity.Employee, error) {
	const op = "employee.List"

	if err := RequireRole(op, p, entity.RoleAdmin, entity.RoleManager); err != nil {
		return nil, err
	}

	employees, err := s.employees.ListByCompany(ctx, p.CompanyID)
	if err != nil {
		s.logger.Error("Failed to list employees", "error", err, "company_id", p.CompanyID)
		return nil, apperr.Internal(op, "failed to list employees", err)
	}
	return employees, nil
}

func (s *companyServiceImpl) GetEmployee(ctx context.Context, id int64) (*entity.Employee, error) {
	const op = "employee.Get"

	employee, err := s.employees.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get employee", "error", err, "employee_id", id)
		return nil, apperr.Internal(op, "failed to load employee", err)
	}
	if employee == nil {
		return nil, apperr.NotFound(op, fmt.Sprintf("employee %d not found", id))
	}
	return employee, nil
}

func (s *companyServiceImpl) ensureEmailFree(ctx context.Context, op, email string) error {
	existing, err := s.employees.GetByEmail(ctx, email)
	if err != nil {
		return apperr.Internal(op, "failed to check email", err)
	}
	if existing != nil {
		return apperr.Conflict(op, fmt.Sprintf("email %s already registered", email))
	}
	return nil
}

func (s *companyServiceImpl) loadManager(ctx context.Context, op string, companyID, managerID int64) (*entity.Employee, error) {
	manager, err := s.employees.GetByID(ctx, managerID)
	if err != nil {
		return nil, apperr.Internal(op, "failed to load manager", err)
	}
	if manager == nil || manager.CompanyID != companyID {
		return nil, apperr.Validation(op, fmt.Sprintf("invalid manager %d", managerID))
	}
	return manager, nil
}

// checkManagerAssignment walks up the proposed manager's chain and fails if it reaches the employee
func (s *companyServiceImpl) checkManagerAssignment(ctx context.Context, op string, employee *entity.Employee, managerID int64) error {
	if managerID == employee.ID {
		return apperr.ValidationWrap(op, "employee cannot manage themselves", ErrManagerCycle)
	}

	current, err := s.loadManager(ctx, op, employee.CompanyID, managerID)
	if err != nil {
		return err
	}

	visited := map[int64]bool{employee.ID: true}
	for current.HasManager() {
		if visited[current.ID] {
			break
		}
		visited[current.ID] = true

		next := *current.ManagerID
		if next == employee.ID {
			return apperr.ValidationWrap(op, fmt.Sprintf("employee %d already reports to employee %d", managerID, employee.ID), ErrManagerCycle)
		}
		current, err = s.employees.GetByID(ctx, next)
		if err != nil {
			return apperr.Internal(op, "failed to walk management chain", err)
		}
		if current == nil {
			break
		}
	}
	return nil
}
