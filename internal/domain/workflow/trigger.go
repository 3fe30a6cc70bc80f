package workflow

// Trigger is an event that can move an expense between states
type Trigger string

const (
	// TriggerAutoApprove fires when no approver chain is available at submission
	TriggerAutoApprove Trigger = "AUTO_APPROVE"
	// TriggerApprove fires when the workflow reaches a final approval
	TriggerApprove Trigger = "APPROVE"
	// TriggerReject fires when the workflow reaches a final rejection
	TriggerReject Trigger = "REJECT"
	// TriggerOverrideApprove and TriggerOverrideReject bypass the workflow
	TriggerOverrideApprove Trigger = "OVERRIDE_APPROVE"
	TriggerOverrideReject  Trigger = "OVERRIDE_REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
