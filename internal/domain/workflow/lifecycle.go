package workflow

import "fmt"

// NewLifecycle builds the instance lifecycle machine positioned at the given
// state. Rollback is the one non-terminal detour: a rolled-back instance
// resumes Running once the current-node pointer has been moved to the
// rollback target.
func NewLifecycle(current State) (StateMachine, error) {
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, current)
	}

	builder := NewBuilder()

	builder.Configure(StateCreated).
		Permit(TriggerStart, StateRunning).
		Permit(TriggerCancel, StateCancelled)

	builder.Configure(StateRunning).
		Permit(TriggerAdvance, StateRunning).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerRejectTerminate, StateTerminated).
		Permit(TriggerRejectRollback, StateRolledBack).
		Permit(TriggerCancel, StateCancelled)

	builder.Configure(StateRolledBack).
		Permit(TriggerResume, StateRunning).
		Permit(TriggerCancel, StateCancelled)

	return builder.Build(current), nil
}
