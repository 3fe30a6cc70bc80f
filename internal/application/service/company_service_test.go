package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orgChart returns admin 1 <- manager 2 <- employees 3 and 4 in company 1, plus an outsider in company 2
func orgChart() []*entity.Employee {
	return []*entity.Employee{
		{ID: 1, CompanyID: 1, Email: "admin@acme.test", Role: entity.RoleAdmin},
		{ID: 2, CompanyID: 1, Email: "manager@acme.test", Role: entity.RoleManager, ManagerID: int64Ptr(1)},
		{ID: 3, CompanyID: 1, Email: "alice@acme.test", Role: entity.RoleEmployee, ManagerID: int64Ptr(2)},
		{ID: 4, CompanyID: 1, Email: "bob@acme.test", Role: entity.RoleEmployee, ManagerID: int64Ptr(2)},
		{ID: 20, CompanyID: 2, Email: "outsider@globex.test", Role: entity.RoleAdmin},
	}
}

var adminPrincipal = Principal{EmployeeID: 1, CompanyID: 1, Role: entity.RoleAdmin}

func newTestCompanyService(employees *mockEmployeeRepo, workflows *mockWorkflowRepo, countries *mockCountryResolver, tx *mockTxManager) CompanyService {
	return NewCompanyService(&mockCompanyRepo{}, employees, workflows, countries, tx, &mockLogger{})
}

func TestCompanyService_CreateCompany(t *testing.T) {
	employees := newMockEmployeeRepo()
	workflows := newMockWorkflowRepo()
	countries := &mockCountryResolver{
		currencyFunc: func(ctx context.Context, country string) (string, error) {
			assert.Equal(t, "India", country)
			return "inr", nil
		},
	}
	txCalls := 0
	tx := &mockTxManager{
		withTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
			txCalls++
			return fn(ctx)
		},
	}

	svc := newTestCompanyService(employees, workflows, countries, tx)
	created, err := svc.CreateCompany(context.Background(), CreateCompanyRequest{
		Name:       "Acme India",
		Country:    "India",
		AdminEmail: "root@acme.test",
		AdminName:  "Root",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, txCalls)
	assert.Equal(t, "INR", created.Company.Currency)
	assert.Equal(t, entity.RoleAdmin, created.Admin.Role)
	assert.Equal(t, created.Company.ID, created.Admin.CompanyID)
	assert.False(t, created.Admin.HasManager())

	saved := workflows.configs[created.Company.ID]
	require.NotNil(t, saved)
	assert.Equal(t, domainwf.DefaultConfig(), saved)
}

func TestCompanyService_CreateCompany_Errors(t *testing.T) {
	valid := CreateCompanyRequest{Name: "Acme", Country: "France", AdminEmail: "root@acme.test", AdminName: "Root"}

	tests := []struct {
		name      string
		req       CreateCompanyRequest
		existing  []*entity.Employee
		countries *mockCountryResolver
		tx        *mockTxManager
		wantKind  apperr.Kind
	}{
		{
			name:      "invalid admin email",
			req:       CreateCompanyRequest{Name: "Acme", Country: "France", AdminEmail: "not-an-email", AdminName: "Root"},
			countries: &mockCountryResolver{},
			tx:        &mockTxManager{},
			wantKind:  apperr.KindValidation,
		},
		{
			name: "unknown country",
			req:  valid,
			countries: &mockCountryResolver{currencyFunc: func(ctx context.Context, country string) (string, error) {
				return "", port.ErrUnknownCountry
			}},
			tx:       &mockTxManager{},
			wantKind: apperr.KindValidation,
		},
		{
			name: "country lookup unavailable",
			req:  valid,
			countries: &mockCountryResolver{currencyFunc: func(ctx context.Context, country string) (string, error) {
				return "", errors.New("connection refused")
			}},
			tx:       &mockTxManager{},
			wantKind: apperr.KindExternalService,
		},
		{
			name:      "admin email already registered",
			req:       valid,
			existing:  []*entity.Employee{{ID: 9, CompanyID: 4, Email: "root@acme.test"}},
			countries: &mockCountryResolver{},
			tx:        &mockTxManager{},
			wantKind:  apperr.KindConflict,
		},
		{
			name:      "transaction fails",
			req:       valid,
			countries: &mockCountryResolver{},
			tx: &mockTxManager{withTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
				return errors.New("database is locked")
			}},
			wantKind: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCompanyService(newMockEmployeeRepo(tt.existing...), newMockWorkflowRepo(), tt.countries, tt.tx)

			created, err := svc.CreateCompany(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, created)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestCompanyService_CreateEmployee(t *testing.T) {
	tests := []struct {
		name     string
		p        Principal
		req      CreateEmployeeRequest
		wantKind apperr.Kind
	}{
		{
			name: "admin adds employee under manager",
			p:    adminPrincipal,
			req:  CreateEmployeeRequest{Email: "carol@acme.test", Name: "Carol", Role: entity.RoleEmployee, ManagerID: int64Ptr(2)},
		},
		{
			name: "manager id zero means no manager",
			p:    adminPrincipal,
			req:  CreateEmployeeRequest{Email: "dave@acme.test", Name: "Dave", Role: entity.RoleManager, ManagerID: int64Ptr(0)},
		},
		{
			name:     "manager may not add employees",
			p:        Principal{EmployeeID: 2, CompanyID: 1, Role: entity.RoleManager},
			req:      CreateEmployeeRequest{Email: "carol@acme.test", Name: "Carol", Role: entity.RoleEmployee},
			wantKind: apperr.KindAuthorization,
		},
		{
			name:     "unknown role",
			p:        adminPrincipal,
			req:      CreateEmployeeRequest{Email: "carol@acme.test", Name: "Carol", Role: "auditor"},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "duplicate email",
			p:        adminPrincipal,
			req:      CreateEmployeeRequest{Email: "alice@acme.test", Name: "Alice", Role: entity.RoleEmployee},
			wantKind: apperr.KindConflict,
		},
		{
			name:     "manager in another company",
			p:        adminPrincipal,
			req:      CreateEmployeeRequest{Email: "carol@acme.test", Name: "Carol", Role: entity.RoleEmployee, ManagerID: int64Ptr(20)},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "manager does not exist",
			p:        adminPrincipal,
			req:      CreateEmployeeRequest{Email: "carol@acme.test", Name: "Carol", Role: entity.RoleEmployee, ManagerID: int64Ptr(404)},
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCompanyService(newMockEmployeeRepo(orgChart()...), newMockWorkflowRepo(), &mockCountryResolver{}, &mockTxManager{})

			employee, err := svc.CreateEmployee(context.Background(), tt.p, tt.req)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}

			require.NoError(t, err)
			assert.NotZero(t, employee.ID)
			assert.Equal(t, tt.p.CompanyID, employee.CompanyID)
			if tt.req.ManagerID != nil && *tt.req.ManagerID != 0 {
				require.True(t, employee.HasManager())
				assert.Equal(t, *tt.req.ManagerID, *employee.ManagerID)
			} else {
				assert.False(t, employee.HasManager())
			}
		})
	}
}

func TestCompanyService_UpdateEmployee_ManagerCycle(t *testing.T) {
	tests := []struct {
		name       string
		employeeID int64
		managerID  int64
		wantCycle  bool
	}{
		{"admin under own indirect report", 1, 3, true},
		{"admin under direct report", 1, 2, true},
		{"self management", 3, 3, true},
		{"employee moves to admin", 3, 1, false},
		{"peer reporting to peer", 4, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			employees := newMockEmployeeRepo(orgChart()...)
			svc := newTestCompanyService(employees, newMockWorkflowRepo(), &mockCountryResolver{}, &mockTxManager{})

			updated, err := svc.UpdateEmployee(context.Background(), adminPrincipal, tt.employeeID,
				UpdateEmployeeRequest{ManagerID: int64Ptr(tt.managerID)})

			if tt.wantCycle {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrManagerCycle)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				assert.Empty(t, employees.updated)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.managerID, *updated.ManagerID)
			assert.Len(t, employees.updated, 1)
		})
	}
}

func TestCompanyService_UpdateEmployee(t *testing.T) {
	t.Run("change role and clear manager", func(t *testing.T) {
		employees := newMockEmployeeRepo(orgChart()...)
		svc := newTestCompanyService(employees, newMockWorkflowRepo(), &mockCountryResolver{}, &mockTxManager{})

		updated, err := svc.UpdateEmployee(context.Background(), adminPrincipal, 3, UpdateEmployeeRequest{
			Role:      stringPtr(entity.RoleManager),
			ManagerID: int64Ptr(0),
		})
		require.NoError(t, err)
		assert.Equal(t, entity.RoleManager, updated.Role)
		assert.False(t, updated.HasManager())
	})

	tests := []struct {
		name       string
		p          Principal
		employeeID int64
		req        UpdateEmployeeRequest
		wantKind   apperr.Kind
	}{
		{"employee in another company", adminPrincipal, 20, UpdateEmployeeRequest{Role: stringPtr(entity.RoleEmployee)}, apperr.KindAuthorization},
		{"unknown employee", adminPrincipal, 404, UpdateEmployeeRequest{Role: stringPtr(entity.RoleEmployee)}, apperr.KindNotFound},
		{"not an admin", Principal{EmployeeID: 2, CompanyID: 1, Role: entity.RoleManager}, 3, UpdateEmployeeRequest{}, apperr.KindAuthorization},
		{"invalid role", adminPrincipal, 3, UpdateEmployeeRequest{Role: stringPtr("owner")}, apperr.KindValidation},
		{"manager from another company", adminPrincipal, 3, UpdateEmployeeRequest{ManagerID: int64Ptr(20)}, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCompanyService(newMockEmployeeRepo(orgChart()...), newMockWorkflowRepo(), &mockCountryResolver{}, &mockTxManager{})

			_, err := svc.UpdateEmployee(context.Background(), tt.p, tt.employeeID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestCompanyService_ListEmployees(t *testing.T) {
	svc := newTestCompanyService(newMockEmployeeRepo(orgChart()...), newMockWorkflowRepo(), &mockCountryResolver{}, &mockTxManager{})

	employees, err := svc.ListEmployees(context.Background(), adminPrincipal)
	require.NoError(t, err)
	assert.Len(t, employees, 4)

	_, err = svc.ListEmployees(context.Background(), Principal{EmployeeID: 3, CompanyID: 1, Role: entity.RoleEmployee})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestCompanyService_GetEmployee(t *testing.T) {
	svc := newTestCompanyService(newMockEmployeeRepo(orgChart()...), newMockWorkflowRepo(), &mockCountryResolver{}, &mockTxManager{})

	employee, err := svc.GetEmployee(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "alice@acme.test", employee.Email)

	_, err = svc.GetEmployee(context.Background(), 404)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
