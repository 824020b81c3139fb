package event

// Type identifies a workflow domain event
type Type string

const (
	// TypeInstanceCreated is emitted when an instance and its first node are materialized
	TypeInstanceCreated Type = "INSTANCE_CREATED"
	// TypeDecisionRecorded is emitted for every accepted decision write
	TypeDecisionRecorded Type = "DECISION_RECORDED"
	// TypeNodeAdvanced is emitted when the chain advances to the next node
	TypeNodeAdvanced Type = "NODE_ADVANCED"
	// TypeInstanceRolledBack is emitted when a rejection rolls the process back
	TypeInstanceRolledBack Type = "INSTANCE_ROLLED_BACK"
	// TypeInstanceTerminated is emitted when a rejection terminates the process
	TypeInstanceTerminated Type = "INSTANCE_TERMINATED"
	// TypeInstanceCompleted is emitted when the chain is exhausted
	TypeInstanceCompleted Type = "INSTANCE_COMPLETED"
	// TypeInstanceCancelled is emitted on administrative cancellation
	TypeInstanceCancelled Type = "INSTANCE_CANCELLED"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}
