package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownRole(r string) bool {
	return r == "admin" || r == "manager" || r == "employee"
}

func TestDefaultConfig_ReturnsFreshCopy(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	a.Steps[0] = UserStep(99)

	assert.Equal(t, ManagerOfSubmitter(), b.Steps[0])
	assert.Equal(t, TypeSequential, b.Type)
	assert.Nil(t, b.Conditional)
	require.NoError(t, b.Validate(knownRole))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{
			name: "empty sequential is legal",
			cfg:  &Config{Type: TypeSequential},
		},
		{
			name: "parallel with threshold",
			cfg: &Config{
				Type:        TypeParallelConditional,
				Steps:       []Step{RoleStep("manager"), UserStep(4)},
				Conditional: &ConditionalRule{Threshold: Threshold(60)},
			},
		},
		{
			name:    "unknown workflow type",
			cfg:     &Config{Type: "hybrid"},
			wantErr: ErrUnknownWorkflowType,
		},
		{
			name:    "unknown step type",
			cfg:     &Config{Type: TypeSequential, Steps: []Step{{Type: "department_head"}}},
			wantErr: ErrUnknownStepType,
		},
		{
			name:    "role step without role",
			cfg:     &Config{Type: TypeSequential, Steps: []Step{{Type: StepRole}}},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "role step with unknown role",
			cfg:     &Config{Type: TypeSequential, Steps: []Step{RoleStep("cfo")}},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "user step without id",
			cfg:     &Config{Type: TypeSequential, Steps: []Step{{Type: StepUser}}},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "manager step with stray role",
			cfg:     &Config{Type: TypeSequential, Steps: []Step{{Type: StepManagerOfSubmitter, Role: "admin"}}},
			wantErr: ErrInvalidStep,
		},
		{
			name: "sequential with conditional",
			cfg: &Config{
				Type:        TypeSequential,
				Conditional: &ConditionalRule{Threshold: Threshold(50)},
			},
			wantErr: ErrInvalidConditional,
		},
		{
			name:    "parallel without conditional",
			cfg:     &Config{Type: TypeParallelConditional, Steps: []Step{RoleStep("admin")}},
			wantErr: ErrInvalidConditional,
		},
		{
			name: "threshold above 100",
			cfg: &Config{
				Type:        TypeParallelConditional,
				Conditional: &ConditionalRule{Threshold: Threshold(120)},
			},
			wantErr: ErrInvalidConditional,
		},
		{
			name: "empty conditional",
			cfg: &Config{
				Type:        TypeParallelConditional,
				Conditional: &ConditionalRule{},
			},
			wantErr: ErrInvalidConditional,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(knownRole)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("reads the stored JSON shape", func(t *testing.T) {
		raw := `{"type":"parallel_conditional","steps":[{"type":"role","role":"admin"},{"type":"user","user_id":7}],"conditional":{"threshold":60,"specific":[7]}}`

		cfg, err := ParseConfig(raw)
		require.NoError(t, err)

		assert.Equal(t, TypeParallelConditional, cfg.Type)
		assert.Equal(t, []Step{RoleStep("admin"), UserStep(7)}, cfg.Steps)
		require.NotNil(t, cfg.Conditional)
		assert.Equal(t, 60.0, *cfg.Conditional.Threshold)
		assert.True(t, cfg.Conditional.IsSpecific(7))
		assert.False(t, cfg.Conditional.IsSpecific(8))
	})

	t.Run("missing type defaults to sequential", func(t *testing.T) {
		cfg, err := ParseConfig(`{"steps":[]}`)
		require.NoError(t, err)
		assert.Equal(t, TypeSequential, cfg.Type)
	})

	t.Run("unknown types survive parsing", func(t *testing.T) {
		cfg, err := ParseConfig(`{"type":"hybrid","steps":[{"type":"committee"}]}`)
		require.NoError(t, err)
		assert.False(t, cfg.Type.IsKnown())
		assert.Equal(t, StepType("committee"), cfg.Steps[0].Type)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := ParseConfig(`{"type":`)
		assert.Error(t, err)
	})
}

func TestConfig_UserIDs(t *testing.T) {
	cfg := &Config{
		Type:        TypeParallelConditional,
		Steps:       []Step{UserStep(3), RoleStep("admin"), UserStep(5), UserStep(3)},
		Conditional: &ConditionalRule{Specific: []int64{5, 9}},
	}

	assert.Equal(t, []int64{3, 5, 9}, cfg.UserIDs())
}

func TestConditionalRule_HasThreshold(t *testing.T) {
	var nilRule *ConditionalRule
	assert.False(t, nilRule.HasThreshold())
	assert.False(t, (&ConditionalRule{Specific: []int64{1}}).HasThreshold())
	assert.False(t, (&ConditionalRule{Threshold: Threshold(0)}).HasThreshold(), "zero threshold is unset")
	assert.True(t, (&ConditionalRule{Threshold: Threshold(60)}).HasThreshold())
}
