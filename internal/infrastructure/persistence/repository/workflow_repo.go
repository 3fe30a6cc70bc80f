package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// WorkflowRepository implements port.WorkflowRepository. Configs are stored as JSON.
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow config repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the company's workflow, or nil when none is stored
func (r *WorkflowRepository) Get(ctx context.Context, companyID int64) (*workflow.Config, error) {
	var raw string
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT config FROM workflows WHERE company_id = ?`, companyID).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	cfg, err := workflow.ParseConfig(raw)
	if err != nil {
		r.logger.Error("Stored workflow is not valid JSON", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

// Save replaces the company's workflow
func (r *WorkflowRepository) Save(ctx context.Context, companyID int64, cfg *workflow.Config) error {
	raw, err := cfg.Marshal()
	if err != nil {
		return err
	}

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO workflows (company_id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at
	`, companyID, raw, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to save workflow", zap.Int64("company_id", companyID), zap.Error(err))
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
