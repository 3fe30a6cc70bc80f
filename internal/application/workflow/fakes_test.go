package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// memStore is an in-memory implementation of every repository the engine uses.
// A single mutex keeps it safe for the concurrency tests.
type memStore struct {
	mu        sync.Mutex
	companies map[int64]*entity.Company
	employees map[int64]*entity.Employee
	expenses  map[int64]*entity.Expense
	records   map[int64]*entity.ApprovalRecord
	workflows map[int64]*domainwf.Config
	nextID    int64

	updateExpenseErr error
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[int64]*entity.Company),
		employees: make(map[int64]*entity.Employee),
		expenses:  make(map[int64]*entity.Expense),
		records:   make(map[int64]*entity.ApprovalRecord),
		workflows: make(map[int64]*domainwf.Config),
		nextID:    100,
	}
}

func (s *memStore) repos() Repositories {
	return Repositories{
		Companies: companyRepo{s},
		Employees: employeeRepo{s},
		Expenses:  expenseRepo{s},
		Approvals: approvalRepo{s},
		Workflows: workflowRepo{s},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// recordsOf returns copies of an expense's records ordered by step then ID
func (s *memStore) recordsOf(expenseID int64) []*entity.ApprovalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByExpense(expenseID)
}

func (s *memStore) listByExpense(expenseID int64) []*entity.ApprovalRecord {
	var out []*entity.ApprovalRecord
	for _, r := range s.records {
		if r.ExpenseID == expenseID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) expense(id int64) *entity.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.expenses[id]
	return &cp
}

type companyRepo struct{ s *memStore }

func (r companyRepo) Create(ctx context.Context, c *entity.Company) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	cp := *c
	r.s.companies[c.ID] = &cp
	return nil
}

func (r companyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type employeeRepo struct{ s *memStore }

func (r employeeRepo) Create(ctx context.Context, e *entity.Employee) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	cp := *e
	r.s.employees[e.ID] = &cp
	return nil
}

func (r employeeRepo) GetByID(ctx context.Context, id int64) (*entity.Employee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.employees[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r employeeRepo) GetByEmail(ctx context.Context, email string) (*entity.Employee, error) {
	return nil, errors.New("not used")
}

func (r employeeRepo) Update(ctx context.Context, e *entity.Employee) error {
	return errors.New("not used")
}

func (r employeeRepo) FirstByRole(ctx context.Context, companyID int64, role string) (*entity.Employee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var first *entity.Employee
	for _, e := range r.s.employees {
		if e.CompanyID == companyID && e.Role == role && (first == nil || e.ID < first.ID) {
			first = e
		}
	}
	if first == nil {
		return nil, nil
	}
	cp := *first
	return &cp, nil
}

func (r employeeRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Employee, error) {
	return nil, errors.New("not used")
}

func (r employeeRepo) ListByManager(ctx context.Context, managerID int64) ([]*entity.Employee, error) {
	return nil, errors.New("not used")
}

type expenseRepo struct{ s *memStore }

func (r expenseRepo) Create(ctx context.Context, e *entity.Expense) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	cp := *e
	r.s.expenses[e.ID] = &cp
	return nil
}

func (r expenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.expenses[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r expenseRepo) Update(ctx context.Context, e *entity.Expense) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.updateExpenseErr != nil {
		return r.s.updateExpenseErr
	}
	cp := *e
	r.s.expenses[e.ID] = &cp
	return nil
}

func (r expenseRepo) ListByEmployees(ctx context.Context, ids []int64) ([]*entity.Expense, error) {
	return nil, errors.New("not used")
}

func (r expenseRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error) {
	return nil, errors.New("not used")
}

type approvalRepo struct{ s *memStore }

func (r approvalRepo) Create(ctx context.Context, rec *entity.ApprovalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec.ID = r.s.id()
	cp := *rec
	r.s.records[rec.ID] = &cp
	return nil
}

func (r approvalRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r approvalRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listByExpense(expenseID), nil
}

func (r approvalRepo) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalRecord, error) {
	return nil, errors.New("not used")
}

func (r approvalRepo) Decide(ctx context.Context, id int64, action, comments string, decidedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok || !rec.IsPending() {
		return port.ErrRecordAlreadyDecided
	}
	rec.Action = action
	rec.Comments = comments
	rec.DecidedAt = &decidedAt
	return nil
}

func (r approvalRepo) DeletePending(ctx context.Context, expenseID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, rec := range r.s.records {
		if rec.ExpenseID == expenseID && rec.IsPending() {
			delete(r.s.records, id)
			n++
		}
	}
	return n, nil
}

type workflowRepo struct{ s *memStore }

func (r workflowRepo) Get(ctx context.Context, companyID int64) (*domainwf.Config, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.workflows[companyID], nil
}

func (r workflowRepo) Save(ctx context.Context, companyID int64, cfg *domainwf.Config) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.workflows[companyID] = cfg
	return nil
}

// mockTxManager runs fn directly; commitErr simulates a failed commit
type mockTxManager struct {
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return m.commitErr
}

// mutexLocker serializes every key behind one mutex
type mutexLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *mutexLocker) Lock(ctx context.Context, key string) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.keys = append(m.keys, key)
	return m.mu.Unlock, nil
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.Publish(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.Publish(ctx, evt)
}

func (m *mockDispatcher) Publish(ctx context.Context, events ...*event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) count(t event.Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
