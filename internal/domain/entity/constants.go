package entity

// RejectOperation is the configured policy for handling a rejection at a
// template node.
type RejectOperation int

const (
	RejectUnset     RejectOperation = 0
	RejectTerminate RejectOperation = 1
	RejectRollback  RejectOperation = 2
)

// IsValid returns true if the reject operation is a known value
func (r RejectOperation) IsValid() bool {
	switch r {
	case RejectUnset, RejectTerminate, RejectRollback:
		return true
	}
	return false
}

// String returns the string representation of the reject operation
func (r RejectOperation) String() string {
	switch r {
	case RejectTerminate:
		return "TERMINATE"
	case RejectRollback:
		return "ROLLBACK"
	default:
		return "UNSET"
	}
}

// OperationKind classifies a participant slot at a node.
type OperationKind int

const (
	// KindApprover gates progression of the process
	KindApprover OperationKind = 0
	// KindCarbonCopy is an informational observer; its verdict is never evaluated
	KindCarbonCopy OperationKind = 1
)

// IsValid returns true if the operation kind is a known value
func (k OperationKind) IsValid() bool {
	return k == KindApprover || k == KindCarbonCopy
}

// String returns the string representation of the operation kind
func (k OperationKind) String() string {
	if k == KindCarbonCopy {
		return "CARBON_COPY"
	}
	return "APPROVER"
}
