package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService tells approvers about work waiting for them
type NotificationService interface {
	// HandleApprovalRequested is the dispatcher handler for approval.requested events
	HandleApprovalRequested(ctx context.Context, evt *event.Event) error

	// Register subscribes the service's handlers on d
	Register(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	approvals port.ApprovalRepository
	expenses  port.ExpenseRepository
	employees port.EmployeeRepository
	notifier  port.ApproverNotifier
	logger    Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	approvals port.ApprovalRepository,
	expenses port.ExpenseRepository,
	employees port.EmployeeRepository,
	notifier port.ApproverNotifier,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		approvals: approvals,
		expenses:  expenses,
		employees: employees,
		notifier:  notifier,
		logger:    logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeApprovalRequested, "notify_approver", s.HandleApprovalRequested)
}

func (s *notificationServiceImpl) HandleApprovalRequested(ctx context.Context, evt *event.Event) error {
	recordID := evt.GetPayloadInt("record_id")

	record, err := s.approvals.GetByID(ctx, recordID)
	if err != nil {
		s.logger.Error("Failed to get approval record", "error", err, "record_id", recordID)
		return fmt.Errorf("get approval record: %w", err)
	}
	// The record may have been decided or cancelled before the event was handled
	if record == nil || !record.IsPending() {
		s.logger.Info("Skipping notification for settled record", "record_id", recordID, "expense_id", evt.ExpenseID)
		return nil
	}

	approver, err := s.employees.GetByID(ctx, record.ApproverID)
	if err != nil {
		s.logger.Error("Failed to get approver", "error", err, "approver_id", record.ApproverID)
		return fmt.Errorf("get approver: %w", err)
	}
	if approver == nil {
		return fmt.Errorf("approver %d not found", record.ApproverID)
	}

	expense, err := s.expenses.GetByID(ctx, record.ExpenseID)
	if err != nil {
		s.logger.Error("Failed to get expense", "error", err, "expense_id", record.ExpenseID)
		return fmt.Errorf("get expense: %w", err)
	}
	if expense == nil {
		return fmt.Errorf("expense %d not found", record.ExpenseID)
	}

	if err := s.notifier.NotifyApprovalRequested(ctx, approver, expense, record); err != nil {
		s.logger.Error("Failed to notify approver",
			"error", err,
			"record_id", record.ID,
			"approver_id", approver.ID,
		)
		return fmt.Errorf("notify approver: %w", err)
	}

	s.logger.Info("Approver notified",
		"record_id", record.ID,
		"expense_id", expense.ID,
		"approver_id", approver.ID,
		"step", record.Step,
	)
	return nil
}
