package engine

import (
	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/template"
)

// RejectPolicy resolves where a rollback rejection sends the process. The
// persisted schema only records the binary Terminate/Rollback choice, so the
// rollback target is policy, kept swappable outside the state machine core.
//
// A nil target tells the engine there is nowhere to roll back to; the
// rejection then terminates the instance.
type RejectPolicy interface {
	RollbackTarget(chain *template.Chain, rejectedNodeID string) *entity.TemplateNode
}

// PredecessorRollback returns the chain's immediate predecessor of the
// rejecting node. This is the default policy.
type PredecessorRollback struct{}

// RollbackTarget implements RejectPolicy
func (PredecessorRollback) RollbackTarget(chain *template.Chain, rejectedNodeID string) *entity.TemplateNode {
	return chain.PredecessorOf(rejectedNodeID)
}

// RestartRollback sends the process back to the chain's entry node, the
// alternative reading of the rollback operation.
type RestartRollback struct{}

// RollbackTarget implements RejectPolicy
func (RestartRollback) RollbackTarget(chain *template.Chain, rejectedNodeID string) *entity.TemplateNode {
	entry := chain.Entry()
	if entry == nil || entry.ID == rejectedNodeID {
		// Rejected at the entry node: nowhere earlier to go
		return nil
	}
	return entry
}

// PolicyByName maps a configured policy name to its implementation,
// defaulting to predecessor rollback.
func PolicyByName(name string) RejectPolicy {
	if name == "restart" {
		return RestartRollback{}
	}
	return PredecessorRollback{}
}
