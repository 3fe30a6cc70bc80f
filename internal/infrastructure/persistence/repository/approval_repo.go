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

const approvalColumns = `id, expense_id, approver_id, step, action, comments, decided_at, created_at`

// ApprovalRepository implements port.ApprovalRepository over the approval_records ledger
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval ledger repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending approval record and sets its ID
func (r *ApprovalRepository) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_records (expense_id, approver_id, step, action, comments, decided_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		record.ExpenseID,
		record.ApproverID,
		record.Step,
		record.Action,
		record.Comments,
		nullableTime(record.DecidedAt),
		record.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval record",
			zap.Int64("expense_id", record.ExpenseID),
			zap.Int64("approver_id", record.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to create approval record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetByID retrieves an approval record by ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRecord, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_records WHERE id = ?`, id)

	record, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval record", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval record: %w", err)
	}
	return record, nil
}

// ListByExpense returns the ledger of an expense ordered by step then ID
func (r *ApprovalRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM approval_records WHERE expense_id = ? ORDER BY step, id`,
		expenseID)
}

// ListPendingByApprover returns an approver's undecided records, oldest first
func (r *ApprovalRepository) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM approval_records WHERE approver_id = ? AND action = '' ORDER BY id`,
		approverID)
}

// Decide sets the action only while the record is still pending
func (r *ApprovalRepository) Decide(ctx context.Context, id int64, action, comments string, decidedAt time.Time) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_records SET action = ?, comments = ?, decided_at = ?
		WHERE id = ? AND action = ''
	`, action, comments, decidedAt, id)
	if err != nil {
		r.logger.Error("Failed to decide approval record", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to decide approval record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return port.ErrRecordAlreadyDecided
	}
	return nil
}

// DeletePending cancels the undecided records of an expense
func (r *ApprovalRepository) DeletePending(ctx context.Context, expenseID int64) (int64, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM approval_records WHERE expense_id = ? AND action = ''`, expenseID)
	if err != nil {
		r.logger.Error("Failed to cancel pending approvals", zap.Int64("expense_id", expenseID), zap.Error(err))
		return 0, fmt.Errorf("failed to cancel pending approvals: %w", err)
	}
	return result.RowsAffected()
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRecord, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approval records", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalRecord
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanApproval(row rowScanner) (*entity.ApprovalRecord, error) {
	var record entity.ApprovalRecord
	var decidedAt sql.NullTime

	if err := row.Scan(
		&record.ID,
		&record.ExpenseID,
		&record.ApproverID,
		&record.Step,
		&record.Action,
		&record.Comments,
		&decidedAt,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}

	if decidedAt.Valid {
		record.DecidedAt = &decidedAt.Time
	}
	return &record, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
