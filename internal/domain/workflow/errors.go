package workflow

import "errors"

// State machine errors.
var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")
)

// Domain error taxonomy shared by the template store, the instance engine and
// the query surface. All are caller errors: no transition partially applies.
var (
	// ErrInvalidTemplateShape is returned when authored nodes do not form a
	// single acyclic chain with one entry and one terminal node
	ErrInvalidTemplateShape = errors.New("invalid template shape")

	// ErrTemplateInUse is returned when editing a template that already has
	// instances against it
	ErrTemplateInUse = errors.New("template is in use")

	// ErrNotFound is returned for unknown template, instance or item ids
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActive is returned when an open instance already exists for
	// the document
	ErrDuplicateActive = errors.New("active instance already exists for document")

	// ErrNotCurrentNode is returned when a decision targets an item outside
	// the instance's current node
	ErrNotCurrentNode = errors.New("item does not belong to the current node")

	// ErrNotApprover is returned when a verdict is submitted against a
	// carbon-copy item
	ErrNotApprover = errors.New("item is not an approver slot")

	// ErrVerdictRequired is returned when an approver decision carries no verdict
	ErrVerdictRequired = errors.New("verdict required for approver decision")

	// ErrInstanceClosed is returned when the instance reached a terminal state
	ErrInstanceClosed = errors.New("instance is closed")

	// ErrConflictingDecision is returned when a decided item is re-submitted
	// with a different verdict
	ErrConflictingDecision = errors.New("conflicting decision for decided item")

	// ErrConcurrencyConflict is returned on a stale optimistic write; the
	// caller must re-read current state and retry
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
