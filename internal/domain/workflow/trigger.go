package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerStart fires when the first node is materialized
	TriggerStart Trigger = "START"
	// TriggerAdvance fires when all approvers at the current node succeeded
	// and a next node exists
	TriggerAdvance Trigger = "ADVANCE"
	// TriggerComplete fires when all approvers at the terminal node succeeded
	TriggerComplete Trigger = "COMPLETE"
	// TriggerRejectTerminate fires on rejection at a node whose policy is Terminate
	TriggerRejectTerminate Trigger = "REJECT_TERMINATE"
	// TriggerRejectRollback fires on rejection at a node whose policy is Rollback
	TriggerRejectRollback Trigger = "REJECT_ROLLBACK"
	// TriggerResume re-opens decision collection after a rollback
	TriggerResume Trigger = "RESUME"
	// TriggerCancel fires on administrative cancellation
	TriggerCancel Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
