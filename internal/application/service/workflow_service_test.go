package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowService_SetWorkflowConfig(t *testing.T) {
	tests := []struct {
		name     string
		p        Principal
		cfg      *domainwf.Config
		wantKind apperr.Kind
	}{
		{
			name: "sequential with user step in company",
			p:    adminPrincipal,
			cfg: &domainwf.Config{
				Type:  domainwf.TypeSequential,
				Steps: []domainwf.Step{domainwf.ManagerOfSubmitter(), domainwf.UserStep(1)},
			},
		},
		{
			name: "empty steps auto approve",
			p:    adminPrincipal,
			cfg:  &domainwf.Config{Type: domainwf.TypeSequential},
		},
		{
			name: "parallel with threshold and specific approver",
			p:    adminPrincipal,
			cfg: &domainwf.Config{
				Type:        domainwf.TypeParallelConditional,
				Steps:       []domainwf.Step{domainwf.UserStep(2), domainwf.RoleStep(entity.RoleAdmin)},
				Conditional: &domainwf.ConditionalRule{Threshold: domainwf.Threshold(60), Specific: []int64{1}},
			},
		},
		{
			name:     "manager cannot change workflow",
			p:        managerPrincipal,
			cfg:      domainwf.DefaultConfig(),
			wantKind: apperr.KindAuthorization,
		},
		{
			name:     "unknown workflow type",
			p:        adminPrincipal,
			cfg:      &domainwf.Config{Type: "round_robin"},
			wantKind: apperr.KindValidation,
		},
		{
			name: "unknown step type",
			p:    adminPrincipal,
			cfg: &domainwf.Config{
				Type:  domainwf.TypeSequential,
				Steps: []domainwf.Step{{Type: "department_head"}},
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "threshold above 100",
			p:    adminPrincipal,
			cfg: &domainwf.Config{
				Type:        domainwf.TypeParallelConditional,
				Steps:       []domainwf.Step{domainwf.UserStep(2)},
				Conditional: &domainwf.ConditionalRule{Threshold: domainwf.Threshold(150)},
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "user step outside company",
			p:    adminPrincipal,
			cfg: &domainwf.Config{
				Type:  domainwf.TypeSequential,
				Steps: []domainwf.Step{domainwf.UserStep(20)},
			},
			wantKind: apperr.KindValidation,
		},
		{
			name: "specific approver who does not exist",
			p:    adminPrincipal,
			cfg: &domainwf.Config{
				Type:        domainwf.TypeParallelConditional,
				Steps:       []domainwf.Step{domainwf.UserStep(2)},
				Conditional: &domainwf.ConditionalRule{Specific: []int64{404}},
			},
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflows := newMockWorkflowRepo()
			svc := NewWorkflowService(workflows, newMockEmployeeRepo(orgChart()...), &mockLogger{})

			saved, err := svc.SetWorkflowConfig(context.Background(), tt.p, tt.cfg)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				assert.Empty(t, workflows.configs, "invalid configs must not be stored")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.cfg, saved)
			assert.Same(t, tt.cfg, workflows.configs[tt.p.CompanyID])
		})
	}
}

func TestWorkflowService_GetWorkflowConfig(t *testing.T) {
	workflows := newMockWorkflowRepo()
	workflows.configs[1] = domainwf.DefaultConfig()
	svc := NewWorkflowService(workflows, newMockEmployeeRepo(orgChart()...), &mockLogger{})

	cfg, err := svc.GetWorkflowConfig(context.Background(), adminPrincipal)
	require.NoError(t, err)
	assert.Equal(t, domainwf.TypeSequential, cfg.Type)

	_, err = svc.GetWorkflowConfig(context.Background(), Principal{EmployeeID: 20, CompanyID: 2, Role: entity.RoleAdmin})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.GetWorkflowConfig(context.Background(), employeePrincipal)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	workflows.getErr = errors.New("no such table: workflows")
	_, err = svc.GetWorkflowConfig(context.Background(), adminPrincipal)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
