package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// Mock repositories
type mockCompanyRepo struct {
	createFunc  func(ctx context.Context, company *entity.Company) error
	getByIDFunc func(ctx context.Context, id int64) (*entity.Company, error)
}

func (m *mockCompanyRepo) Create(ctx context.Context, company *entity.Company) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, company)
	}
	company.ID = 1
	return nil
}

func (m *mockCompanyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.Company{ID: id, Name: "Acme", Currency: "USD", Country: "United States"}, nil
}

// mockEmployeeRepo keeps employees in a map unless a func field overrides the call
type mockEmployeeRepo struct {
	employees map[int64]*entity.Employee
	nextID    int64
	updated   []*entity.Employee

	createFunc        func(ctx context.Context, employee *entity.Employee) error
	getByEmailFunc    func(ctx context.Context, email string) (*entity.Employee, error)
	updateFunc        func(ctx context.Context, employee *entity.Employee) error
	listByCompanyFunc func(ctx context.Context, companyID int64) ([]*entity.Employee, error)
	listByManagerFunc func(ctx context.Context, managerID int64) ([]*entity.Employee, error)
}

func newMockEmployeeRepo(employees ...*entity.Employee) *mockEmployeeRepo {
	m := &mockEmployeeRepo{employees: make(map[int64]*entity.Employee), nextID: 100}
	for _, e := range employees {
		m.employees[e.ID] = e
	}
	return m
}

func (m *mockEmployeeRepo) Create(ctx context.Context, employee *entity.Employee) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, employee)
	}
	m.nextID++
	employee.ID = m.nextID
	m.employees[employee.ID] = employee
	return nil
}

func (m *mockEmployeeRepo) GetByID(ctx context.Context, id int64) (*entity.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *mockEmployeeRepo) GetByEmail(ctx context.Context, email string) (*entity.Employee, error) {
	if m.getByEmailFunc != nil {
		return m.getByEmailFunc(ctx, email)
	}
	for _, e := range m.employees {
		if e.Email == email {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockEmployeeRepo) Update(ctx context.Context, employee *entity.Employee) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, employee)
	}
	m.updated = append(m.updated, employee)
	m.employees[employee.ID] = employee
	return nil
}

func (m *mockEmployeeRepo) FirstByRole(ctx context.Context, companyID int64, role string) (*entity.Employee, error) {
	return nil, nil
}

func (m *mockEmployeeRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Employee, error) {
	if m.listByCompanyFunc != nil {
		return m.listByCompanyFunc(ctx, companyID)
	}
	var out []*entity.Employee
	for _, e := range m.employees {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEmployeeRepo) ListByManager(ctx context.Context, managerID int64) ([]*entity.Employee, error) {
	if m.listByManagerFunc != nil {
		return m.listByManagerFunc(ctx, managerID)
	}
	var out []*entity.Employee
	for _, e := range m.employees {
		if e.HasManager() && *e.ManagerID == managerID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockExpenseRepo struct {
	getByIDFunc         func(ctx context.Context, id int64) (*entity.Expense, error)
	listByEmployeesFunc func(ctx context.Context, ids []int64) ([]*entity.Expense, error)
	listByCompanyFunc   func(ctx context.Context, companyID int64) ([]*entity.Expense, error)
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *entity.Expense) error {
	return nil
}

func (m *mockExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockExpenseRepo) Update(ctx context.Context, expense *entity.Expense) error {
	return nil
}

func (m *mockExpenseRepo) ListByEmployees(ctx context.Context, ids []int64) ([]*entity.Expense, error) {
	if m.listByEmployeesFunc != nil {
		return m.listByEmployeesFunc(ctx, ids)
	}
	return nil, nil
}

func (m *mockExpenseRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error) {
	if m.listByCompanyFunc != nil {
		return m.listByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

type mockApprovalRepo struct {
	getByIDFunc               func(ctx context.Context, id int64) (*entity.ApprovalRecord, error)
	listByExpenseFunc         func(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error)
	listPendingByApproverFunc func(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error)
}

func (m *mockApprovalRepo) Create(ctx context.Context, record *entity.ApprovalRecord) error {
	return nil
}

func (m *mockApprovalRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRecord, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockApprovalRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	if m.listByExpenseFunc != nil {
		return m.listByExpenseFunc(ctx, expenseID)
	}
	return nil, nil
}

func (m *mockApprovalRepo) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	if m.listPendingByApproverFunc != nil {
		return m.listPendingByApproverFunc(ctx, approverID)
	}
	return nil, nil
}

func (m *mockApprovalRepo) Decide(ctx context.Context, id int64, action, comments string, decidedAt time.Time) error {
	return nil
}

func (m *mockApprovalRepo) DeletePending(ctx context.Context, expenseID int64) (int64, error) {
	return 0, nil
}

type mockWorkflowRepo struct {
	configs map[int64]*domainwf.Config
	getErr  error
	saveErr error
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{configs: make(map[int64]*domainwf.Config)}
}

func (m *mockWorkflowRepo) Get(ctx context.Context, companyID int64) (*domainwf.Config, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.configs[companyID], nil
}

func (m *mockWorkflowRepo) Save(ctx context.Context, companyID int64, cfg *domainwf.Config) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.configs[companyID] = cfg
	return nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// Mock collaborators
type mockEngine struct {
	submitFunc   func(ctx context.Context, expense *entity.Expense, submitter *entity.Employee, company *entity.Company) (*workflow.InitiateResult, error)
	decideFunc   func(ctx context.Context, recordID, approverID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error)
	overrideFunc func(ctx context.Context, expenseID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error)
}

func (m *mockEngine) Submit(ctx context.Context, expense *entity.Expense, submitter *entity.Employee, company *entity.Company) (*workflow.InitiateResult, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, expense, submitter, company)
	}
	expense.ID = 1
	expense.Status = entity.StatusPending
	return &workflow.InitiateResult{Expense: expense}, nil
}

func (m *mockEngine) Initiate(ctx context.Context, expense *entity.Expense, cfg *domainwf.Config, submitter *entity.Employee, company *entity.Company) (*workflow.InitiateResult, error) {
	return &workflow.InitiateResult{Expense: expense}, nil
}

func (m *mockEngine) Decide(ctx context.Context, recordID, approverID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error) {
	if m.decideFunc != nil {
		return m.decideFunc(ctx, recordID, approverID, action, comments)
	}
	return &workflow.DecisionOutcome{Expense: &entity.Expense{ID: 1, Status: entity.StatusPending}}, nil
}

func (m *mockEngine) EvaluateExpense(ctx context.Context, expenseID int64, cfg *domainwf.Config) (*workflow.DecisionOutcome, error) {
	return &workflow.DecisionOutcome{Expense: &entity.Expense{ID: expenseID}}, nil
}

func (m *mockEngine) Override(ctx context.Context, expenseID int64, action workflow.Action, comments string) (*workflow.DecisionOutcome, error) {
	if m.overrideFunc != nil {
		return m.overrideFunc(ctx, expenseID, action, comments)
	}
	return &workflow.DecisionOutcome{Expense: &entity.Expense{ID: expenseID, Status: entity.StatusApproved}, Finalized: true}, nil
}

type mockConverter struct {
	convertFunc func(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

func (m *mockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if m.convertFunc != nil {
		return m.convertFunc(ctx, amount, from, to)
	}
	return amount, nil
}

type mockCountryResolver struct {
	currencyFunc func(ctx context.Context, country string) (string, error)
}

func (m *mockCountryResolver) CurrencyForCountry(ctx context.Context, country string) (string, error) {
	if m.currencyFunc != nil {
		return m.currencyFunc(ctx, country)
	}
	return "USD", nil
}

type mockExporter struct {
	rows []port.ExportRow
	err  error
}

func (m *mockExporter) Export(ctx context.Context, w io.Writer, rows []port.ExportRow) error {
	m.rows = rows
	if m.err != nil {
		return m.err
	}
	_, err := io.WriteString(w, "xlsx")
	return err
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []int64
	errFn func(approver *entity.Employee) error
}

func (m *mockNotifier) NotifyApprovalRequested(ctx context.Context, approver *entity.Employee, expense *entity.Expense, record *entity.ApprovalRecord) error {
	if m.errFn != nil {
		if err := m.errFn(approver); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, record.ID)
	return nil
}

type mockSubscriber struct {
	dispatcher.Dispatcher
	names []string
	types []event.Type
}

func (m *mockSubscriber) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
	m.types = append(m.types, eventType)
	m.names = append(m.names, name)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(v string) *string { return &v }
