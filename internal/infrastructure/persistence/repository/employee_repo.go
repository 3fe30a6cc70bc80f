package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const employeeColumns = `id, company_id, email, name, role, manager_id, lark_open_id, created_at`

// EmployeeRepository implements port.EmployeeRepository
type EmployeeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB, logger *zap.Logger) port.EmployeeRepository {
	return &EmployeeRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an employee and sets its ID
func (r *EmployeeRepository) Create(ctx context.Context, employee *entity.Employee) error {
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO employees (company_id, email, name, role, manager_id, lark_open_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		employee.CompanyID,
		employee.Email,
		employee.Name,
		employee.Role,
		nullableID(employee.ManagerID),
		employee.LarkOpenID,
		employee.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create employee", zap.String("email", employee.Email), zap.Error(err))
		return fmt.Errorf("failed to create employee: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	employee.ID = id
	return nil
}

// GetByID retrieves an employee by ID
func (r *EmployeeRepository) GetByID(ctx context.Context, id int64) (*entity.Employee, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)

	employee, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return employee, nil
}

// GetByEmail retrieves an employee by email
func (r *EmployeeRepository) GetByEmail(ctx context.Context, email string) (*entity.Employee, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE email = ?`, email)

	employee, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return employee, nil
}

// Update persists name, role, manager and Lark identity
func (r *EmployeeRepository) Update(ctx context.Context, employee *entity.Employee) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE employees SET name = ?, role = ?, manager_id = ?, lark_open_id = ? WHERE id = ?
	`,
		employee.Name,
		employee.Role,
		nullableID(employee.ManagerID),
		employee.LarkOpenID,
		employee.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update employee", zap.Int64("id", employee.ID), zap.Error(err))
		return fmt.Errorf("failed to update employee: %w", err)
	}
	return nil
}

// FirstByRole returns the lowest-ID employee of the company holding role
func (r *EmployeeRepository) FirstByRole(ctx context.Context, companyID int64, role string) (*entity.Employee, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE company_id = ? AND role = ?
		ORDER BY id ASC
		LIMIT 1
	`, companyID, role)

	employee, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee by role",
			zap.Int64("company_id", companyID), zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee by role: %w", err)
	}
	return employee, nil
}

// ListByCompany returns the company roster ordered by ID
func (r *EmployeeRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Employee, error) {
	return r.list(ctx, `SELECT `+employeeColumns+` FROM employees WHERE company_id = ? ORDER BY id`, companyID)
}

// ListByManager returns the direct reports of a manager
func (r *EmployeeRepository) ListByManager(ctx context.Context, managerID int64) ([]*entity.Employee, error) {
	return r.list(ctx, `SELECT `+employeeColumns+` FROM employees WHERE manager_id = ? ORDER BY id`, managerID)
}

func (r *EmployeeRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Employee, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list employees", zap.Error(err))
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []*entity.Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmployee(row rowScanner) (*entity.Employee, error) {
	var employee entity.Employee
	var managerID sql.NullInt64

	if err := row.Scan(
		&employee.ID,
		&employee.CompanyID,
		&employee.Email,
		&employee.Name,
		&employee.Role,
		&managerID,
		&employee.LarkOpenID,
		&employee.CreatedAt,
	); err != nil {
		return nil, err
	}

	if managerID.Valid {
		id := managerID.Int64
		employee.ManagerID = &id
	}
	return &employee, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Verify interface compliance
var _ port.EmployeeRepository = (*EmployeeRepository)(nil)
