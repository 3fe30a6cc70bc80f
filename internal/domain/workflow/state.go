package workflow

// State is the status of an expense in the approval lifecycle.
// Values match the persisted expense status.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

var validStates = map[State]bool{
	StatePending:  true,
	StateApproved: true,
	StateRejected: true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// IsTerminal returns true once the workflow has reached a final decision.
// Administrative overrides may still move a terminal expense.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known expense status
func (s State) IsValid() bool {
	return validStates[s]
}
