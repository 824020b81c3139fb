package workflow

// State represents a workflow instance state in the approval lifecycle
type State string

const (
	StateCreated    State = "CREATED"
	StateRunning    State = "RUNNING"
	StateCompleted  State = "COMPLETED"
	StateTerminated State = "TERMINATED"
	StateRolledBack State = "ROLLED_BACK"
	StateCancelled  State = "CANCELLED"
)

var validStates = map[State]bool{
	StateCreated:    true,
	StateRunning:    true,
	StateCompleted:  true,
	StateTerminated: true,
	StateRolledBack: true,
	StateCancelled:  true,
}

var terminalStates = map[State]bool{
	StateCompleted:  true,
	StateTerminated: true,
	StateCancelled:  true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
