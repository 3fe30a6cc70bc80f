package workflow

// NewExpenseStateMachine creates a state machine for the expense status lifecycle.
//
// Workflow triggers only leave pending. Overrides are accepted from every state
// because an administrator may reverse a decision.
func NewExpenseStateMachine(initialState State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerAutoApprove, StateApproved).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerOverrideApprove, StateApproved).
		Permit(TriggerOverrideReject, StateRejected)

	builder.Configure(StateApproved).
		Permit(TriggerOverrideApprove, StateApproved).
		Permit(TriggerOverrideReject, StateRejected)

	builder.Configure(StateRejected).
		Permit(TriggerOverrideApprove, StateApproved).
		Permit(TriggerOverrideReject, StateRejected)

	return builder.Build(initialState)
}
