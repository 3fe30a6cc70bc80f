package workflow

import (
	"encoding/json"
	"fmt"
)

// Type selects how a company's approval steps are run
type Type string

const (
	// TypeSequential runs steps one after another; any rejection is final
	TypeSequential Type = "sequential"
	// TypeParallelConditional opens every step at once and decides by ConditionalRule
	TypeParallelConditional Type = "parallel_conditional"
)

// IsKnown reports whether the engine can run this workflow type
func (t Type) IsKnown() bool {
	return t == TypeSequential || t == TypeParallelConditional
}

// StepType is the discriminator of a Step
type StepType string

const (
	StepManagerOfSubmitter StepType = "manager_of_submitter"
	StepRole               StepType = "role"
	StepUser               StepType = "user"
)

// Step describes how to find the approver for one stage or voter slot.
// It is a tagged union on Type: Role is set only for StepRole and UserID only for StepUser.
type Step struct {
	Type   StepType `json:"type"`
	Role   string   `json:"role,omitempty"`
	UserID int64    `json:"user_id,omitempty"`
}

// ManagerOfSubmitter returns a step resolving to the submitter's direct manager
func ManagerOfSubmitter() Step {
	return Step{Type: StepManagerOfSubmitter}
}

// RoleStep returns a step resolving to the first employee holding role
func RoleStep(role string) Step {
	return Step{Type: StepRole, Role: role}
}

// UserStep returns a step resolving to a specific employee
func UserStep(userID int64) Step {
	return Step{Type: StepUser, UserID: userID}
}

// ConditionalRule decides a parallel_conditional vote
type ConditionalRule struct {
	// Threshold is the minimum approved percentage (0-100) of all records
	Threshold *float64 `json:"threshold,omitempty"`
	// Specific approvers whose single approval is sufficient
	Specific []int64 `json:"specific,omitempty"`
}

// HasThreshold reports whether a positive threshold is configured. A zero
// threshold is treated as unset.
func (r *ConditionalRule) HasThreshold() bool {
	return r != nil && r.Threshold != nil && *r.Threshold > 0
}

// IsSpecific reports whether approverID is in the specific set
func (r *ConditionalRule) IsSpecific(approverID int64) bool {
	if r == nil {
		return false
	}
	for _, id := range r.Specific {
		if id == approverID {
			return true
		}
	}
	return false
}

// Config is a company's declarative approval workflow
type Config struct {
	Type        Type             `json:"type"`
	Steps       []Step           `json:"steps"`
	Conditional *ConditionalRule `json:"conditional"`
}

// DefaultConfig returns a fresh copy of the configuration given to new companies:
// the submitter's manager, then the first admin.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeSequential,
		Steps: []Step{
			ManagerOfSubmitter(),
			RoleStep("admin"),
		},
	}
}

// Threshold is a helper for building rules in code and tests
func Threshold(pct float64) *float64 {
	return &pct
}

// Validate rejects configurations the engine cannot run.
// validRole reports whether a role name is recognized; it is injected so this
// package stays free of entity constants.
func (c *Config) Validate(validRole func(string) bool) error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrUnknownWorkflowType)
	}
	if !c.Type.IsKnown() {
		return fmt.Errorf("%w: %q", ErrUnknownWorkflowType, c.Type)
	}

	for i, step := range c.Steps {
		if err := step.validate(validRole); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	switch c.Type {
	case TypeSequential:
		if c.Conditional != nil {
			return fmt.Errorf("%w: conditional rule only applies to %s workflows", ErrInvalidConditional, TypeParallelConditional)
		}
	case TypeParallelConditional:
		if c.Conditional == nil {
			return fmt.Errorf("%w: %s workflows need a conditional rule", ErrInvalidConditional, TypeParallelConditional)
		}
		if err := c.Conditional.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (s Step) validate(validRole func(string) bool) error {
	switch s.Type {
	case StepManagerOfSubmitter:
		if s.Role != "" || s.UserID != 0 {
			return fmt.Errorf("%w: %s takes no arguments", ErrInvalidStep, s.Type)
		}
	case StepRole:
		if s.Role == "" {
			return fmt.Errorf("%w: role step needs a role", ErrInvalidStep)
		}
		if validRole != nil && !validRole(s.Role) {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidStep, s.Role)
		}
	case StepUser:
		if s.UserID <= 0 {
			return fmt.Errorf("%w: user step needs a user_id", ErrInvalidStep)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStepType, s.Type)
	}
	return nil
}

func (r *ConditionalRule) validate() error {
	if r.Threshold == nil && len(r.Specific) == 0 {
		return fmt.Errorf("%w: needs a threshold or specific approvers", ErrInvalidConditional)
	}
	if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 100) {
		return fmt.Errorf("%w: threshold %.2f outside 0-100", ErrInvalidConditional, *r.Threshold)
	}
	for _, id := range r.Specific {
		if id <= 0 {
			return fmt.Errorf("%w: specific approver id %d", ErrInvalidConditional, id)
		}
	}
	return nil
}

// UserIDs returns every employee referenced by user steps and the specific rule
func (c *Config) UserIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if id > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, s := range c.Steps {
		if s.Type == StepUser {
			add(s.UserID)
		}
	}
	if c.Conditional != nil {
		for _, id := range c.Conditional.Specific {
			add(id)
		}
	}
	return ids
}

// Marshal encodes the config for storage
func (c *Config) Marshal() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal workflow config: %w", err)
	}
	return string(b), nil
}

// ParseConfig decodes a stored config. It does not validate, so that configs
// written before validation existed can still be read and reported.
func ParseConfig(raw string) (*Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("parse workflow config: %w", err)
	}
	if c.Type == "" {
		c.Type = TypeSequential
	}
	return &c, nil
}
