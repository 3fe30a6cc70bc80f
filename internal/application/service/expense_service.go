package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// DateLayout is the accepted expense date format
const DateLayout = "2006-01-02"

// SubmitExpenseRequest is an expense claim as entered by the submitter
type SubmitExpenseRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	CurrencyOriginal string          `json:"currency_original" validate:"omitempty,len=3,alpha"`
	Category         string          `json:"category" validate:"required,max=100"`
	Description      string          `json:"description" validate:"required,max=2000"`
	Date             string          `json:"date" validate:"required"`
	ReceiptURL       string          `json:"receipt_url" validate:"omitempty,url"`
}

// ExpenseService exposes the expense lifecycle to callers
type ExpenseService interface {
	Submit(ctx context.Context, p Principal, req SubmitExpenseRequest) (*entity.Expense, error)
	Decide(ctx context.Context, p Principal, recordID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error)
	Override(ctx context.Context, p Principal, expenseID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error)

	GetExpense(ctx context.Context, p Principal, expenseID int64) (*entity.Expense, error)
	ListMyExpenses(ctx context.Context, p Principal) ([]*entity.Expense, error)
	PendingApprovals(ctx context.Context, p Principal) ([]*entity.PendingApproval, error)
	ExpenseApprovals(ctx context.Context, p Principal, expenseID int64) ([]*entity.ApprovalRecord, error)
	ExportCompanyExpenses(ctx context.Context, p Principal, w io.Writer) error
}

type expenseServiceImpl struct {
	engine    workflow.WorkflowEngine
	repos     workflow.Repositories
	converter port.CurrencyConverter
	exporter  port.ExpenseExporter
	logger    Logger
	now       func() time.Time
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	engine workflow.WorkflowEngine,
	repos workflow.Repositories,
	converter port.CurrencyConverter,
	exporter port.ExpenseExporter,
	logger Logger,
) ExpenseService {
	return &expenseServiceImpl{
		engine:    engine,
		repos:     repos,
		converter: converter,
		exporter:  exporter,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit converts the claim into the company currency and hands it to the workflow engine.
// Conversion happens before anything is written.
func (s *expenseServiceImpl) Submit(ctx context.Context, p Principal, req SubmitExpenseRequest) (*entity.Expense, error) {
	const op = "expense.Submit"

	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation(op, "amount must be greater than zero")
	}
	date, err := time.Parse(DateLayout, req.Date)
	if err != nil {
		return nil, apperr.ValidationWrap(op, "invalid date format (YYYY-MM-DD)", err)
	}

	submitter, company, err := s.loadPrincipal(ctx, op, p)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.CurrencyOriginal)
	if currency == "" {
		currency = company.Currency
	}

	converted, err := s.converter.Convert(ctx, req.Amount, currency, company.Currency)
	if err != nil {
		if errors.Is(err, port.ErrUnsupportedCurrency) {
			return nil, apperr.ValidationWrap(op, fmt.Sprintf("unsupported currency %s", currency), err)
		}
		s.logger.Error("Currency conversion failed", "error", err, "from", currency, "to", company.Currency)
		return nil, apperr.External(op, "currency conversion failed", err)
	}

	now := s.now()
	expense := &entity.Expense{
		EmployeeID:       submitter.ID,
		CompanyID:        company.ID,
		AmountOriginal:   req.Amount,
		CurrencyOriginal: currency,
		AmountConverted:  converted.Round(2),
		Category:         req.Category,
		Description:      req.Description,
		ExpenseDate:      date,
		ReceiptURL:       req.ReceiptURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	result, err := s.engine.Submit(ctx, expense, submitter, company)
	if err != nil {
		s.logger.Error("Failed to submit expense", "error", err, "employee_id", submitter.ID)
		return nil, err
	}

	s.logger.Info("Expense submitted",
		"expense_id", result.Expense.ID,
		"status", result.Expense.Status,
		"records", len(result.Records),
		"stalled", result.Expense.Stalled,
	)
	return result.Expense, nil
}

// Decide records the caller's decision on one of their own approval records.
// Ownership of the record is the authorization; the engine enforces it.
func (s *expenseServiceImpl) Decide(ctx context.Context, p Principal, recordID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error) {
	outcome, err := s.engine.Decide(ctx, recordID, p.EmployeeID, action, comments)
	if err != nil {
		s.logger.Warn("Decision refused", "error", err, "record_id", recordID, "approver_id", p.EmployeeID)
		return nil, err
	}

	s.logger.Info("Decision recorded",
		"record_id", recordID,
		"expense_id", outcome.Expense.ID,
		"action", action,
		"status", outcome.Expense.Status,
	)
	return outcome, nil
}

func (s *expenseServiceImpl) Override(ctx context.Context, p Principal, expenseID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error) {
	const op = "expense.Override"

	if err := RequireRole(op, p, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if !action.IsValid() {
		return nil, apperr.Validation(op, fmt.Sprintf("invalid action %q", action))
	}

	expense, err := s.loadExpense(ctx, op, expenseID)
	if err != nil {
		return nil, err
	}
	if err := requireSameCompany(op, p, expense.CompanyID); err != nil {
		return nil, err
	}

	outcome, err := s.engine.Override(ctx, expenseID, action, comments)
	if err != nil {
		s.logger.Error("Failed to override expense", "error", err, "expense_id", expenseID)
		return nil, err
	}

	s.logger.Info("Expense overridden",
		"expense_id", expenseID,
		"admin_id", p.EmployeeID,
		"status", outcome.Expense.Status,
		"cancelled", outcome.Cancelled,
	)
	return outcome, nil
}

// GetExpense returns an expense visible to the caller: their own, a direct report's,
// one they are an approver on, or any in the company for admins
func (s *expenseServiceImpl) GetExpense(ctx context.Context, p Principal, expenseID int64) (*entity.Expense, error) {
	const op = "expense.Get"

	expense, err := s.loadExpense(ctx, op, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, op, p, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// ListMyExpenses is scoped by role: employees see their own, managers their direct reports', admins the company's
func (s *expenseServiceImpl) ListMyExpenses(ctx context.Context, p Principal) ([]*entity.Expense, error) {
	const op = "expense.ListMy"

	var (
		expenses []*entity.Expense
		err      error
	)
	switch p.Role {
	case entity.RoleAdmin:
		expenses, err = s.repos.Expenses.ListByCompany(ctx, p.CompanyID)
	case entity.RoleManager:
		var reports []*entity.Employee
		reports, err = s.repos.Employees.ListByManager(ctx, p.EmployeeID)
		if err != nil {
			break
		}
		ids := make([]int64, 0, len(reports))
		for _, r := range reports {
			ids = append(ids, r.ID)
		}
		expenses, err = s.repos.Expenses.ListByEmployees(ctx, ids)
	default:
		expenses, err = s.repos.Expenses.ListByEmployees(ctx, []int64{p.EmployeeID})
	}
	if err != nil {
		s.logger.Error("Failed to list expenses", "error", err, "employee_id", p.EmployeeID, "role", p.Role)
		return nil, apperr.Internal(op, "failed to list expenses", err)
	}
	return expenses, nil
}

// PendingApprovals is the caller's inbox of undecided records
func (s *expenseServiceImpl) PendingApprovals(ctx context.Context, p Principal) ([]*entity.PendingApproval, error) {
	const op = "expense.PendingApprovals"

	records, err := s.repos.Approvals.ListPendingByApprover(ctx, p.EmployeeID)
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "error", err, "approver_id", p.EmployeeID)
		return nil, apperr.Internal(op, "failed to list pending approvals", err)
	}

	expenses := make(map[int64]*entity.Expense)
	emails := make(map[int64]string)
	result := make([]*entity.PendingApproval, 0, len(records))

	for _, record := range records {
		expense, ok := expenses[record.ExpenseID]
		if !ok {
			expense, err = s.loadExpense(ctx, op, record.ExpenseID)
			if err != nil {
				return nil, err
			}
			expenses[record.ExpenseID] = expense
		}

		email, ok := emails[expense.EmployeeID]
		if !ok {
			submitter, err := s.repos.Employees.GetByID(ctx, expense.EmployeeID)
			if err != nil {
				return nil, apperr.Internal(op, "failed to load submitter", err)
			}
			if submitter != nil {
				email = submitter.Email
			}
			emails[expense.EmployeeID] = email
		}

		result = append(result, &entity.PendingApproval{
			Record:        record,
			Expense:       expense,
			EmployeeEmail: email,
		})
	}
	return result, nil
}

// ExpenseApprovals returns the approval ledger of an expense visible to the caller
func (s *expenseServiceImpl) ExpenseApprovals(ctx context.Context, p Principal, expenseID int64) ([]*entity.ApprovalRecord, error) {
	const op = "expense.Approvals"

	if _, err := s.GetExpense(ctx, p, expenseID); err != nil {
		return nil, err
	}

	records, err := s.repos.Approvals.ListByExpense(ctx, expenseID)
	if err != nil {
		s.logger.Error("Failed to list approval records", "error", err, "expense_id", expenseID)
		return nil, apperr.Internal(op, "failed to list approval records", err)
	}
	return records, nil
}

// ExportCompanyExpenses writes the company's expense ledger to w
func (s *expenseServiceImpl) ExportCompanyExpenses(ctx context.Context, p Principal, w io.Writer) error {
	const op = "expense.Export"

	if err := RequireRole(op, p, entity.RoleAdmin); err != nil {
		return err
	}

	expenses, err := s.repos.Expenses.ListByCompany(ctx, p.CompanyID)
	if err != nil {
		return apperr.Internal(op, "failed to list expenses", err)
	}
	employees, err := s.repos.Employees.ListByCompany(ctx, p.CompanyID)
	if err != nil {
		return apperr.Internal(op, "failed to list employees", err)
	}

	byID := make(map[int64]*entity.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	rows := make([]port.ExportRow, 0, len(expenses))
	for _, expense := range expenses {
		records, err := s.repos.Approvals.ListByExpense(ctx, expense.ID)
		if err != nil {
			return apperr.Internal(op, "failed to list approval records", err)
		}
		rows = append(rows, port.ExportRow{
			Expense:   expense,
			Submitter: byID[expense.EmployeeID],
			Approvals: records,
		})
	}

	if err := s.exporter.Export(ctx, w, rows); err != nil {
		s.logger.Error("Failed to export expenses", "error", err, "company_id", p.CompanyID)
		return apperr.Internal(op, "failed to export expenses", err)
	}

	s.logger.Info("Expenses exported", "company_id", p.CompanyID, "rows", len(rows))
	return nil
}

func (s *expenseServiceImpl) loadPrincipal(ctx context.Context, op string, p Principal) (*entity.Employee, *entity.Company, error) {
	submitter, err := s.repos.Employees.GetByID(ctx, p.EmployeeID)
	if err != nil {
		return nil, nil, apperr.Internal(op, "failed to load submitter", err)
	}
	if submitter == nil {
		return nil, nil, apperr.NotFound(op, fmt.Sprintf("employee %d not found", p.EmployeeID))
	}

	company, err := s.repos.Companies.GetByID(ctx, submitter.CompanyID)
	if err != nil {
		return nil, nil, apperr.Internal(op, "failed to load company", err)
	}
	if company == nil {
		return nil, nil, apperr.NotFound(op, fmt.Sprintf("company %d not found", submitter.CompanyID))
	}
	return submitter, company, nil
}

func (s *expenseServiceImpl) loadExpense(ctx context.Context, op string, id int64) (*entity.Expense, error) {
	expense, err := s.repos.Expenses.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(op, "failed to load expense", err)
	}
	if expense == nil {
		return nil, apperr.NotFound(op, fmt.Sprintf("expense %d not found", id))
	}
	return expense, nil
}

func (s *expenseServiceImpl) authorizeView(ctx context.Context, op string, p Principal, expense *entity.Expense) error {
	if err := requireSameCompany(op, p, expense.CompanyID); err != nil {
		return err
	}
	if p.Role == entity.RoleAdmin || expense.EmployeeID == p.EmployeeID {
		return nil
	}

	submitter, err := s.repos.Employees.GetByID(ctx, expense.EmployeeID)
	if err != nil {
		return apperr.Internal(op, "failed to load submitter", err)
	}
	if submitter != nil && submitter.HasManager() && *submitter.ManagerID == p.EmployeeID {
		return nil
	}

	records, err := s.repos.Approvals.ListByExpense(ctx, expense.ID)
	if err != nil {
		return apperr.Internal(op, "failed to list approval records", err)
	}
	for _, r := range records {
		if r.ApproverID == p.EmployeeID {
			return nil
		}
	}
	return apperr.Forbidden(op, fmt.Sprintf("expense %d is not visible to employee %d", expense.ID, p.EmployeeID))
}
