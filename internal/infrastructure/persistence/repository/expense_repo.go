package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// expenseDateLayout is how expense dates are stored
const expenseDateLayout = "2006-01-02"

const expenseColumns = `
	id, employee_id, company_id, amount_original, currency_original, amount_converted,
	category, description, expense_date, status, stalled, stall_reason,
	comments, receipt_url, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an expense and sets its ID. Amounts are stored as decimal text.
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt.IsZero() {
		expense.UpdatedAt = expense.CreatedAt
	}
	if expense.Status == "" {
		expense.Status = entity.StatusPending
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO expenses (
			employee_id, company_id, amount_original, currency_original, amount_converted,
			category, description, expense_date, status, stalled, stall_reason,
			comments, receipt_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		expense.EmployeeID,
		expense.CompanyID,
		expense.AmountOriginal.String(),
		expense.CurrencyOriginal,
		expense.AmountConverted.String(),
		expense.Category,
		expense.Description,
		expense.ExpenseDate.Format(expenseDateLayout),
		expense.Status,
		expense.Stalled,
		expense.StallReason,
		expense.Comments,
		expense.ReceiptURL,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.Int64("employee_id", expense.EmployeeID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	expense.ID = id
	return nil
}

// GetByID retrieves an expense by ID
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)

	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// Update persists the workflow-owned fields: status, stall flag and comments
func (r *ExpenseRepository) Update(ctx context.Context, expense *entity.Expense) error {
	if expense.UpdatedAt.IsZero() {
		expense.UpdatedAt = time.Now().UTC()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE expenses
		SET status = ?, stalled = ?, stall_reason = ?, comments = ?, updated_at = ?
		WHERE id = ?
	`,
		expense.Status,
		expense.Stalled,
		expense.StallReason,
		expense.Comments,
		expense.UpdatedAt,
		expense.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.Int64("id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update expense %d: not found", expense.ID)
	}
	return nil
}

// ListByEmployees returns expenses submitted by any of the employees, newest first
func (r *ExpenseRepository) ListByEmployees(ctx context.Context, employeeIDs []int64) ([]*entity.Expense, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(employeeIDs)), ",")
	args := make([]interface{}, len(employeeIDs))
	for i, id := range employeeIDs {
		args[i] = id
	}

	return r.list(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE employee_id IN (`+placeholders+`) ORDER BY created_at DESC, id DESC`,
		args...)
}

// ListByCompany returns every expense of a company, newest first
func (r *ExpenseRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error) {
	return r.list(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE company_id = ? ORDER BY created_at DESC, id DESC`,
		companyID)
}

func (r *ExpenseRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Expense, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var expense entity.Expense
	var expenseDate string

	if err := row.Scan(
		&expense.ID,
		&expense.EmployeeID,
		&expense.CompanyID,
		&expense.AmountOriginal,
		&expense.CurrencyOriginal,
		&expense.AmountConverted,
		&expense.Category,
		&expense.Description,
		&expenseDate,
		&expense.Status,
		&expense.Stalled,
		&expense.StallReason,
		&expense.Comments,
		&expense.ReceiptURL,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	); err != nil {
		return nil, err
	}

	date, err := time.Parse(expenseDateLayout, expenseDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expense_date %q: %w", expenseDate, err)
	}
	expense.ExpenseDate = date

	return &expense, nil
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
