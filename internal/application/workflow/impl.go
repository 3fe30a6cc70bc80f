package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/resolver"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Repositories groups the persistence ports the engine needs
type Repositories struct {
	Companies port.CompanyRepository
	Employees port.EmployeeRepository
	Expenses  port.ExpenseRepository
	Approvals port.ApprovalRepository
	Workflows port.WorkflowRepository
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	repos      Repositories
	resolver   resolver.ApproverResolver
	txManager  port.TransactionManager
	locker     port.Locker
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the logger used to report stalled expenses
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the decision timestamp source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	repos Repositories,
	approverResolver resolver.ApproverResolver,
	txManager port.TransactionManager,
	locker port.Locker,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		repos:     repos,
		resolver:  approverResolver,
		txManager: txManager,
		locker:    locker,
		logger:    nopLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// expenseLockKey is the locker key serializing decisions on one expense
func expenseLockKey(expenseID int64) string {
	return fmt.Sprintf("expense:%d", expenseID)
}

func (e *engineImpl) Submit(ctx context.Context, expense *entity.Expense, submitter *entity.Employee, company *entity.Company) (*InitiateResult, error) {
	const op = "workflow.Submit"

	var result *InitiateResult
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		expense.Status = entity.StatusPending
		if err := e.repos.Expenses.Create(txCtx, expense); err != nil {
			return apperr.Internal(op, "failed to create expense", err)
		}

		cfg, err := e.repos.Workflows.Get(txCtx, company.ID)
		if err != nil {
			return apperr.Internal(op, "failed to load workflow", err)
		}

		result, err = e.Initiate(txCtx, expense, cfg, submitter, company)
		return err
	})
	if err != nil {
		return nil, err
	}

	submitted := event.NewEvent(event.TypeExpenseSubmitted, expense.ID, expense.CompanyID, map[string]interface{}{
		"employee_id":      expense.EmployeeID,
		"amount_converted": expense.AmountConverted.String(),
		"category":         expense.Category,
	})
	result.Events = append([]*event.Event{submitted}, result.Events...)
	e.publish(ctx, result.Events)

	return result, nil
}

func (e *engineImpl) Initiate(ctx context.Context, expense *entity.Expense, cfg *domainwf.Config, submitter *entity.Employee, company *entity.Company) (*InitiateResult, error) {
	const op = "workflow.Initiate"
	result := &InitiateResult{Expense: expense}

	if cfg == nil {
		ev, err := e.stall(ctx, expense, entity.StallNoWorkflow)
		if err != nil {
			return nil, err
		}
		result.Events = append(result.Events, ev)
		return result, nil
	}

	switch cfg.Type {
	case domainwf.TypeSequential:
		var approver *entity.Employee
		if len(cfg.Steps) > 0 {
			var err error
			approver, err = e.resolver.Resolve(ctx, submitter, cfg.Steps[0], company)
			if err != nil {
				return nil, apperr.Internal(op, "failed to resolve first approver", err)
			}
		}

		// No approver chain available: the expense is approved on the spot
		if approver == nil {
			evs, err := e.finalize(ctx, expense, domainwf.TriggerAutoApprove, "", nil)
			if err != nil {
				return nil, err
			}
			result.Events = append(result.Events, evs...)
			return result, nil
		}

		record, ev, err := e.openRecord(ctx, expense, approver, 1)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, record)
		result.Events = append(result.Events, ev)

	case domainwf.TypeParallelConditional:
		for i, step := range cfg.Steps {
			approver, err := e.resolver.Resolve(ctx, submitter, step, company)
			if err != nil {
				return nil, apperr.Internal(op, "failed to resolve approver", err)
			}
			if approver == nil {
				e.logger.Warn("Skipping unresolvable parallel step",
					"expense_id", expense.ID,
					"step", i+1,
					"step_type", step.Type,
				)
				continue
			}

			record, ev, err := e.openRecord(ctx, expense, approver, i+1)
			if err != nil {
				return nil, err
			}
			result.Records = append(result.Records, record)
			result.Events = append(result.Events, ev)
		}

		if len(result.Records) == 0 {
			ev, err := e.stall(ctx, expense, entity.StallNoApprovers)
			if err != nil {
				return nil, err
			}
			result.Events = append(result.Events, ev)
		}

	default:
		ev, err := e.stall(ctx, expense, entity.StallUnknownType)
		if err != nil {
			return nil, err
		}
		result.Events = append(result.Events, ev)
	}

	return result, nil
}

func (e *engineImpl) Decide(ctx context.Context, recordID, actingApproverID int64, action Action, comments string) (*DecisionOutcome, error) {
	const op = "workflow.Decide"

	if !action.IsValid() {
		return nil, apperr.Validation(op, fmt.Sprintf("invalid action %q", action))
	}

	// Locate the expense before locking; everything is re-read under the lock
	record, err := e.repos.Approvals.GetByID(ctx, recordID)
	if err != nil {
		return nil, apperr.Internal(op, "failed to load approval record", err)
	}
	if record == nil {
		return nil, apperr.NotFound(op, fmt.Sprintf("approval record %d not found", recordID))
	}

	unlock, err := e.locker.Lock(ctx, expenseLockKey(record.ExpenseID))
	if err != nil {
		return nil, apperr.Internal(op, "failed to lock expense", err)
	}
	defer unlock()

	outcome := &DecisionOutcome{}
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		record, err := e.repos.Approvals.GetByID(txCtx, recordID)
		if err != nil {
			return apperr.Internal(op, "failed to load approval record", err)
		}
		if record == nil {
			return apperr.NotFound(op, fmt.Sprintf("approval record %d not found", recordID))
		}
		if record.ApproverID != actingApproverID {
			return apperr.Forbidden(op, "approval record belongs to another approver")
		}
		if !record.IsPending() {
			return apperr.Conflict(op, fmt.Sprintf("approval record %d already %s", record.ID, record.Action))
		}

		expense, err := e.loadExpense(txCtx, op, record.ExpenseID)
		if err != nil {
			return err
		}
		if expense.IsTerminal() {
			return apperr.Conflict(op, fmt.Sprintf("expense %d is already %s", expense.ID, expense.Status))
		}

		decidedAt := e.now()
		if err := e.repos.Approvals.Decide(txCtx, record.ID, action.recordAction(), comments, decidedAt); err != nil {
			if errors.Is(err, port.ErrRecordAlreadyDecided) {
				return apperr.ConflictWrap(op, "approval record already decided", err)
			}
			return apperr.Internal(op, "failed to record decision", err)
		}
		record.Action = action.recordAction()
		record.Comments = comments
		record.DecidedAt = &decidedAt

		outcome.Expense = expense
		outcome.Record = record
		outcome.Events = append(outcome.Events, event.NewEvent(event.TypeApprovalDecided, expense.ID, expense.CompanyID, map[string]interface{}{
			"record_id":   record.ID,
			"approver_id": record.ApproverID,
			"step":        record.Step,
			"action":      record.Action,
		}))

		cfg, err := e.repos.Workflows.Get(txCtx, expense.CompanyID)
		if err != nil {
			return apperr.Internal(op, "failed to load workflow", err)
		}

		if action == ActionReject {
			return e.afterRejection(txCtx, expense, record, cfg, outcome)
		}
		return e.afterApproval(txCtx, expense, record, cfg, outcome)
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, outcome.Events)
	return outcome, nil
}

// afterApproval advances the workflow once record has been approved
func (e *engineImpl) afterApproval(ctx context.Context, expense *entity.Expense, record *entity.ApprovalRecord, cfg *domainwf.Config, outcome *DecisionOutcome) error {
	const op = "workflow.Decide"

	if cfg == nil {
		return e.finalizeInto(ctx, expense, domainwf.TriggerApprove, "", outcome)
	}

	switch cfg.Type {
	case domainwf.TypeSequential:
		if record.Step >= len(cfg.Steps) {
			return e.finalizeInto(ctx, expense, domainwf.TriggerApprove, "", outcome)
		}

		submitter, company, err := e.loadParties(ctx, op, expense)
		if err != nil {
			return err
		}
		next, err := e.resolver.Resolve(ctx, submitter, cfg.Steps[record.Step], company)
		if err != nil {
			return apperr.Internal(op, "failed to resolve next approver", err)
		}
		if next == nil {
			ev, err := e.stall(ctx, expense, entity.StallUnresolvedApprover)
			if err != nil {
				return err
			}
			outcome.Events = append(outcome.Events, ev)
			return nil
		}

		created, ev, err := e.openRecord(ctx, expense, next, record.Step+1)
		if err != nil {
			return err
		}
		outcome.Created = append(outcome.Created, created)
		outcome.Events = append(outcome.Events, ev)
		return nil

	case domainwf.TypeParallelConditional:
		return e.evaluateInto(ctx, expense, cfg, outcome)

	default:
		ev, err := e.stall(ctx, expense, entity.StallUnknownType)
		if err != nil {
			return err
		}
		outcome.Events = append(outcome.Events, ev)
		return nil
	}
}

// afterRejection finishes a rejection. Only parallel votes can survive one.
func (e *engineImpl) afterRejection(ctx context.Context, expense *entity.Expense, record *entity.ApprovalRecord, cfg *domainwf.Config, outcome *DecisionOutcome) error {
	if cfg != nil && cfg.Type == domainwf.TypeParallelConditional {
		return e.evaluateInto(ctx, expense, cfg, outcome)
	}
	return e.finalizeInto(ctx, expense, domainwf.TriggerReject, record.Comments, outcome)
}

func (e *engineImpl) EvaluateExpense(ctx context.Context, expenseID int64, cfg *domainwf.Config) (*DecisionOutcome, error) {
	const op = "workflow.EvaluateExpense"

	unlock, err := e.locker.Lock(ctx, expenseLockKey(expenseID))
	if err != nil {
		return nil, apperr.Internal(op, "failed to lock expense", err)
	}
	defer unlock()

	outcome := &DecisionOutcome{}
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		expense, err := e.loadExpense(txCtx, op, expenseID)
		if err != nil {
			return err
		}
		outcome.Expense = expense
		return e.evaluateInto(txCtx, expense, cfg, outcome)
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, outcome.Events)
	return outcome, nil
}

// evaluateInto applies the conditional rule. Terminal expenses are left alone.
func (e *engineImpl) evaluateInto(ctx context.Context, expense *entity.Expense, cfg *domainwf.Config, outcome *DecisionOutcome) error {
	const op = "workflow.Evaluate"

	if expense.IsTerminal() || cfg == nil || cfg.Conditional == nil {
		return nil
	}

	records, err := e.repos.Approvals.ListByExpense(ctx, expense.ID)
	if err != nil {
		return apperr.Internal(op, "failed to list approval records", err)
	}

	switch Evaluate(records, cfg.Conditional) {
	case VerdictApproved:
		return e.finalizeInto(ctx, expense, domainwf.TriggerApprove, "", outcome)
	case VerdictRejected:
		return e.finalizeInto(ctx, expense, domainwf.TriggerReject, lastRejectionComment(records), outcome)
	}

	// Everyone has voted and the rule is still unmet: nothing can move this expense
	if len(records) > 0 && pendingCount(records) == 0 && !expense.Stalled {
		ev, err := e.stall(ctx, expense, entity.StallInconclusiveVote)
		if err != nil {
			return err
		}
		outcome.Events = append(outcome.Events, ev)
	}
	return nil
}

func (e *engineImpl) Override(ctx context.Context, expenseID int64, action Action, comments string) (*DecisionOutcome, error) {
	const op = "workflow.Override"

	if !action.IsValid() {
		return nil, apperr.Validation(op, fmt.Sprintf("invalid action %q", action))
	}

	unlock, err := e.locker.Lock(ctx, expenseLockKey(expenseID))
	if err != nil {
		return nil, apperr.Internal(op, "failed to lock expense", err)
	}
	defer unlock()

	trigger := domainwf.TriggerOverrideApprove
	expenseComments := ""
	if action == ActionReject {
		trigger = domainwf.TriggerOverrideReject
		expenseComments = comments
	}

	outcome := &DecisionOutcome{}
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		expense, err := e.loadExpense(txCtx, op, expenseID)
		if err != nil {
			return err
		}
		outcome.Expense = expense
		previous := expense.Status

		if err := e.finalizeInto(txCtx, expense, trigger, expenseComments, outcome); err != nil {
			return err
		}

		outcome.Events = append(outcome.Events, event.NewEvent(event.TypeExpenseOverridden, expense.ID, expense.CompanyID, map[string]interface{}{
			"action":          string(action),
			"previous_status": previous,
			"cancelled":       outcome.Cancelled,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, outcome.Events)
	return outcome, nil
}

// finalizeInto moves the expense to a terminal status and records the effect on outcome
func (e *engineImpl) finalizeInto(ctx context.Context, expense *entity.Expense, trigger domainwf.Trigger, comments string, outcome *DecisionOutcome) error {
	evs, err := e.finalize(ctx, expense, trigger, comments, outcome)
	if err != nil {
		return err
	}
	outcome.Finalized = true
	outcome.Events = append(outcome.Events, evs...)
	return nil
}

// finalize fires trigger on the expense state machine, persists the new status
// and cancels every record still pending for the expense.
func (e *engineImpl) finalize(ctx context.Context, expense *entity.Expense, trigger domainwf.Trigger, comments string, outcome *DecisionOutcome) ([]*event.Event, error) {
	const op = "workflow.finalize"

	machine := domainwf.NewExpenseStateMachine(domainwf.State(expense.Status))
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, apperr.ConflictWrap(op, fmt.Sprintf("expense %d cannot move from %s", expense.ID, expense.Status), err)
	}

	expense.Status = machine.State().String()
	expense.Stalled = false
	expense.StallReason = ""
	if comments != "" {
		expense.Comments = comments
	}
	expense.UpdatedAt = e.now()

	if err := e.repos.Expenses.Update(ctx, expense); err != nil {
		return nil, apperr.Internal(op, "failed to update expense", err)
	}

	cancelled, err := e.repos.Approvals.DeletePending(ctx, expense.ID)
	if err != nil {
		return nil, apperr.Internal(op, "failed to cancel pending approvals", err)
	}
	if outcome != nil {
		outcome.Cancelled += cancelled
	}

	eventType := event.TypeExpenseApproved
	if expense.Status == entity.StatusRejected {
		eventType = event.TypeExpenseRejected
	}

	e.logger.Info("Expense finalized",
		"expense_id", expense.ID,
		"status", expense.Status,
		"trigger", trigger,
		"cancelled", cancelled,
	)

	return []*event.Event{event.NewEvent(eventType, expense.ID, expense.CompanyID, map[string]interface{}{
		"trigger":   trigger.String(),
		"cancelled": cancelled,
	})}, nil
}

// stall flags a pending expense that has no legal next step
func (e *engineImpl) stall(ctx context.Context, expense *entity.Expense, reason string) (*event.Event, error) {
	expense.Stalled = true
	expense.StallReason = reason
	expense.UpdatedAt = e.now()

	if err := e.repos.Expenses.Update(ctx, expense); err != nil {
		return nil, apperr.Internal("workflow.stall", "failed to update expense", err)
	}

	e.logger.Warn("Expense stalled",
		"expense_id", expense.ID,
		"company_id", expense.CompanyID,
		"reason", reason,
	)

	return event.NewEvent(event.TypeExpenseStalled, expense.ID, expense.CompanyID, map[string]interface{}{
		"reason": reason,
	}), nil
}

// openRecord creates a pending approval record for approver at step
func (e *engineImpl) openRecord(ctx context.Context, expense *entity.Expense, approver *entity.Employee, step int) (*entity.ApprovalRecord, *event.Event, error) {
	record := &entity.ApprovalRecord{
		ExpenseID:  expense.ID,
		ApproverID: approver.ID,
		Step:       step,
		Action:     entity.ActionPending,
		CreatedAt:  e.now(),
	}
	if err := e.repos.Approvals.Create(ctx, record); err != nil {
		return nil, nil, apperr.Internal("workflow.openRecord", "failed to create approval record", err)
	}

	return record, event.NewEvent(event.TypeApprovalRequested, expense.ID, expense.CompanyID, map[string]interface{}{
		"record_id":   record.ID,
		"approver_id": approver.ID,
		"step":        step,
	}), nil
}

func (e *engineImpl) loadExpense(ctx context.Context, op string, id int64) (*entity.Expense, error) {
	expense, err := e.repos.Expenses.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(op, "failed to load expense", err)
	}
	if expense == nil {
		return nil, apperr.NotFound(op, fmt.Sprintf("expense %d not found", id))
	}
	return expense, nil
}

// loadParties fetches the submitter and company an expense is resolved against
func (e *engineImpl) loadParties(ctx context.Context, op string, expense *entity.Expense) (*entity.Employee, *entity.Company, error) {
	submitter, err := e.repos.Employees.GetByID(ctx, expense.EmployeeID)
	if err != nil {
		return nil, nil, apperr.Internal(op, "failed to load submitter", err)
	}
	if submitter == nil {
		return nil, nil, apperr.NotFound(op, fmt.Sprintf("employee %d not found", expense.EmployeeID))
	}

	company, err := e.repos.Companies.GetByID(ctx, expense.CompanyID)
	if err != nil {
		return nil, nil, apperr.Internal(op, "failed to load company", err)
	}
	if company == nil {
		return nil, nil, apperr.NotFound(op, fmt.Sprintf("company %d not found", expense.CompanyID))
	}

	return submitter, company, nil
}

func (e *engineImpl) publish(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil || len(events) == 0 {
		return
	}
	e.dispatcher.Publish(ctx, events...)
}

// lastRejectionComment returns the comments of the most recent rejection
func lastRejectionComment(records []*entity.ApprovalRecord) string {
	var latest *entity.ApprovalRecord
	for _, r := range records {
		if r.Action != entity.ActionRejected || r.DecidedAt == nil {
			continue
		}
		if latest == nil || r.DecidedAt.After(*latest.DecidedAt) {
			latest = r
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Comments
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
