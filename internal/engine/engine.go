// Package engine implements the instance engine: it materializes approval
// processes from templates, records participant decisions and resolves
// terminal state. All progression happens synchronously inside CreateInstance
// and RecordDecision calls; a waiting approval is persisted state, never a
// blocked goroutine.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/directory"
	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/event"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/repository"
	"github.com/openwind/approvalflow/internal/template"
	"github.com/openwind/approvalflow/pkg/database"
)

// Engine advances approval workflow instances
type Engine struct {
	db        *database.DB
	templates *template.Store
	instances *repository.InstanceRepository
	nodes     *repository.NodeRepository
	items     *repository.ItemRepository
	directory directory.Directory
	policy    RejectPolicy
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a new instance engine
func NewEngine(
	db *database.DB,
	templates *template.Store,
	instances *repository.InstanceRepository,
	nodes *repository.NodeRepository,
	items *repository.ItemRepository,
	dir directory.Directory,
	policy RejectPolicy,
	publisher event.Publisher,
	logger *zap.Logger,
) *Engine {
	if policy == nil {
		policy = PredecessorRollback{}
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &Engine{
		db:        db,
		templates: templates,
		instances: instances,
		nodes:     nodes,
		items:     items,
		directory: dir,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DecisionRequest is one participant's submission against a decision record.
// Verdict is nil for a comment-only carbon-copy annotation.
type DecisionRequest struct {
	InstanceID string
	ItemID     string
	OperatorID string
	Verdict    *bool
	Comment    string
}

// CreateInstance materializes a new approval process: the instance, its first
// node and one decision record per entry-node participant, with operator
// display names snapshotted at creation time.
func (e *Engine) CreateInstance(ctx context.Context, templateID, docID, remark string) (*entity.WorkflowInstance, error) {
	if docID == "" {
		return nil, fmt.Errorf("doc id is required")
	}

	chain, err := e.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	entry := chain.Entry()
	if entry == nil {
		return nil, fmt.Errorf("template %s: %w", templateID, workflow.ErrInvalidTemplateShape)
	}

	machine, err := workflow.NewLifecycle(workflow.StateCreated)
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(workflow.TriggerStart); err != nil {
		return nil, err
	}

	nodeID := uuid.NewString()
	inst := &entity.WorkflowInstance{
		ID:            uuid.NewString(),
		TemplateID:    templateID,
		DocID:         docID,
		Remark:        remark,
		State:         machine.State().String(),
		CurrentNodeID: &nodeID,
		RowVersion:    1,
		CreatedAt:     e.now(),
	}

	err = e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		active, err := e.instances.FindActiveByDoc(ctx, tx, docID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("doc %s already has instance %s: %w", docID, active.ID, workflow.ErrDuplicateActive)
		}

		if err := e.instances.Create(ctx, tx, inst); err != nil {
			return err
		}
		_, err = e.materializeNode(ctx, tx, inst, entry, nodeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Instance created",
		zap.String("instance_id", inst.ID),
		zap.String("template_id", templateID),
		zap.String("doc_id", docID))
	e.publisher.Publish(event.New(event.TypeInstanceCreated, inst.ID, docID, map[string]interface{}{
		"template_id": templateID,
		"entry_node":  entry.ID,
	}))
	return inst, nil
}

// RecordDecision applies one participant decision and, when it settles the
// current node, advances, completes, terminates or rolls back the instance in
// the same transaction. Re-submitting an identical verdict is a no-op;
// concurrent writes are serialized through the item and instance row versions.
func (e *Engine) RecordDecision(ctx context.Context, req DecisionRequest) error {
	var events []*event.Event

	err := e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		evts, err := e.recordDecisionTx(ctx, tx, req)
		events = evts
		return err
	})
	if err != nil {
		return err
	}

	for _, evt := range events {
		e.publisher.Publish(evt)
	}
	return nil
}

func (e *Engine) recordDecisionTx(ctx context.Context, tx *sql.Tx, req DecisionRequest) ([]*event.Event, error) {
	inst, err := e.instances.GetByID(ctx, tx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %s: %w", req.InstanceID, workflow.ErrNotFound)
	}
	if workflow.State(inst.State).IsTerminal() {
		return nil, fmt.Errorf("instance %s is %s: %w", inst.ID, inst.State, workflow.ErrInstanceClosed)
	}

	item, err := e.items.GetByID(ctx, tx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.InstanceID != inst.ID {
		return nil, fmt.Errorf("item %s on instance %s: %w", req.ItemID, req.InstanceID, workflow.ErrNotFound)
	}
	if req.OperatorID != "" && item.OperatorID != req.OperatorID {
		return nil, fmt.Errorf("item %s does not belong to operator %s: %w",
			req.ItemID, req.OperatorID, workflow.ErrNotFound)
	}

	if item.OperationKind == entity.KindCarbonCopy {
		if req.Verdict != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, workflow.ErrNotApprover)
		}
		// Observer note: accepted any time before a terminal state, never
		// drives a transition
		if err := e.items.CompareAndSwapDecision(ctx, tx, item.ID, item.RowVersion, nil, req.Comment); err != nil {
			return nil, err
		}
		return []*event.Event{e.decisionEvent(inst, item, nil, req.Comment)}, nil
	}

	if req.Verdict == nil {
		return nil, fmt.Errorf("item %s: %w", item.ID, workflow.ErrVerdictRequired)
	}

	if inst.CurrentNodeID == nil || !item.Binding.BoundTo(*inst.CurrentNodeID) {
		return nil, fmt.Errorf("item %s: %w", item.ID, workflow.ErrNotCurrentNode)
	}

	if item.Decided() {
		if *item.IsSuccess == *req.Verdict {
			// Idempotent retry of the same decision
			return nil, nil
		}
		return nil, fmt.Errorf("item %s already decided %v: %w",
			item.ID, *item.IsSuccess, workflow.ErrConflictingDecision)
	}

	if err := e.items.CompareAndSwapDecision(ctx, tx, item.ID, item.RowVersion, req.Verdict, req.Comment); err != nil {
		return nil, err
	}
	events := []*event.Event{e.decisionEvent(inst, item, req.Verdict, req.Comment)}

	// Re-read all sibling approver records under the same transaction so two
	// approvers finishing simultaneously cannot both observe a settled node
	siblings, err := e.items.ListByNode(ctx, tx, *inst.CurrentNodeID)
	if err != nil {
		return nil, err
	}

	rejected := false
	allApproved := true
	for _, sibling := range siblings {
		if sibling.OperationKind != entity.KindApprover {
			continue
		}
		if !sibling.Decided() {
			allApproved = false
			continue
		}
		if !*sibling.IsSuccess {
			rejected = true
		}
	}

	if rejected {
		evts, err := e.handleRejection(ctx, tx, inst)
		if err != nil {
			return nil, err
		}
		return append(events, evts...), nil
	}
	if allApproved {
		evts, err := e.handleNodeSettled(ctx, tx, inst)
		if err != nil {
			return nil, err
		}
		return append(events, evts...), nil
	}
	return events, nil
}

// handleNodeSettled advances the chain or completes the instance after every
// approver at the current node succeeded
func (e *Engine) handleNodeSettled(ctx context.Context, tx *sql.Tx, inst *entity.WorkflowInstance) ([]*event.Event, error) {
	chain, currentTemplateNode, err := e.currentTemplateNode(ctx, tx, inst)
	if err != nil {
		return nil, err
	}

	machine, err := workflow.NewLifecycle(workflow.State(inst.State))
	if err != nil {
		return nil, err
	}

	if currentTemplateNode.NextNodeID == nil {
		if err := machine.Fire(workflow.TriggerComplete); err != nil {
			return nil, err
		}
		closedAt := e.now()
		err = e.instances.CompareAndSwap(ctx, tx, inst.ID, inst.RowVersion,
			machine.State(), inst.CurrentNodeID, &closedAt)
		if err != nil {
			return nil, err
		}
		e.logger.Info("Instance completed", zap.String("instance_id", inst.ID))
		return []*event.Event{event.New(event.TypeInstanceCompleted, inst.ID, inst.DocID, nil)}, nil
	}

	next := chain.NodeByID(*currentTemplateNode.NextNodeID)
	if next == nil {
		return nil, fmt.Errorf("template node %s references missing node %s: %w",
			currentTemplateNode.ID, *currentTemplateNode.NextNodeID, workflow.ErrInvalidTemplateShape)
	}

	if err := machine.Fire(workflow.TriggerAdvance); err != nil {
		return nil, err
	}

	// A node revisited after an earlier rollback keeps its original row;
	// only its verdicts are re-opened
	instNode, err := e.nodes.FindByTemplateNode(ctx, tx, inst.ID, next.ID)
	if err != nil {
		return nil, err
	}
	if instNode != nil {
		if err := e.items.ResetNodeVerdicts(ctx, tx, instNode.ID); err != nil {
			return nil, err
		}
	} else {
		instNode, err = e.materializeNode(ctx, tx, inst, next, uuid.NewString())
		if err != nil {
			return nil, err
		}
	}

	err = e.instances.CompareAndSwap(ctx, tx, inst.ID, inst.RowVersion,
		machine.State(), &instNode.ID, nil)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Instance advanced",
		zap.String("instance_id", inst.ID),
		zap.String("node_id", instNode.ID))
	return []*event.Event{event.New(event.TypeNodeAdvanced, inst.ID, inst.DocID, map[string]interface{}{
		"node_id":          instNode.ID,
		"template_node_id": next.ID,
	})}, nil
}

// handleRejection resolves a rejection through the current node's configured
// reject operation
func (e *Engine) handleRejection(ctx context.Context, tx *sql.Tx, inst *entity.WorkflowInstance) ([]*event.Event, error) {
	chain, currentTemplateNode, err := e.currentTemplateNode(ctx, tx, inst)
	if err != nil {
		return nil, err
	}

	if currentTemplateNode.RejectOperation == entity.RejectRollback {
		if target := e.policy.RollbackTarget(chain, currentTemplateNode.ID); target != nil {
			return e.rollbackTo(ctx, tx, inst, target)
		}
		// No earlier node to return to: fall through to termination
	}

	machine, err := workflow.NewLifecycle(workflow.State(inst.State))
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(workflow.TriggerRejectTerminate); err != nil {
		return nil, err
	}

	closedAt := e.now()
	err = e.instances.CompareAndSwap(ctx, tx, inst.ID, inst.RowVersion,
		machine.State(), inst.CurrentNodeID, &closedAt)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Instance terminated", zap.String("instance_id", inst.ID))
	return []*event.Event{event.New(event.TypeInstanceTerminated, inst.ID, inst.DocID, nil)}, nil
}

// rollbackTo re-opens decision collection at an earlier, already-visited node
func (e *Engine) rollbackTo(ctx context.Context, tx *sql.Tx, inst *entity.WorkflowInstance, target *entity.TemplateNode) ([]*event.Event, error) {
	targetNode, err := e.nodes.FindByTemplateNode(ctx, tx, inst.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if targetNode == nil {
		return nil, fmt.Errorf("rollback target node %s was never visited on instance %s",
			target.ID, inst.ID)
	}

	machine, err := workflow.NewLifecycle(workflow.State(inst.State))
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(workflow.TriggerRejectRollback); err != nil {
		return nil, err
	}
	// The rolled-back detour resumes running in the same transaction; the
	// persisted state never rests at ROLLED_BACK
	if err := machine.Fire(workflow.TriggerResume); err != nil {
		return nil, err
	}

	if err := e.items.ResetNodeVerdicts(ctx, tx, targetNode.ID); err != nil {
		return nil, err
	}
	err = e.instances.CompareAndSwap(ctx, tx, inst.ID, inst.RowVersion,
		machine.State(), &targetNode.ID, nil)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Instance rolled back",
		zap.String("instance_id", inst.ID),
		zap.String("node_id", targetNode.ID))
	return []*event.Event{event.New(event.TypeInstanceRolledBack, inst.ID, inst.DocID, map[string]interface{}{
		"node_id":          targetNode.ID,
		"template_node_id": target.ID,
	})}, nil
}

// CancelInstance administratively closes an open instance. Cancellation is
// terminal; later decisions fail with ErrInstanceClosed.
func (e *Engine) CancelInstance(ctx context.Context, instanceID, reason string) error {
	var docID string

	err := e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		inst, err := e.instances.GetByID(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("instance %s: %w", instanceID, workflow.ErrNotFound)
		}
		if workflow.State(inst.State).IsTerminal() {
			return fmt.Errorf("instance %s is %s: %w", inst.ID, inst.State, workflow.ErrInstanceClosed)
		}
		docID = inst.DocID

		machine, err := workflow.NewLifecycle(workflow.State(inst.State))
		if err != nil {
			return err
		}
		if err := machine.Fire(workflow.TriggerCancel); err != nil {
			return err
		}

		closedAt := e.now()
		return e.instances.CompareAndSwap(ctx, tx, inst.ID, inst.RowVersion,
			machine.State(), inst.CurrentNodeID, &closedAt)
	})
	if err != nil {
		return err
	}

	e.logger.Info("Instance cancelled",
		zap.String("instance_id", instanceID),
		zap.String("reason", reason))
	e.publisher.Publish(event.New(event.TypeInstanceCancelled, instanceID, docID, map[string]interface{}{
		"reason": reason,
	}))
	return nil
}

// SeedPendingItem creates a decision record ahead of node arrival. The record
// stays unbound until the process reaches a node with an unresolved
// participant slot, which consumes it.
func (e *Engine) SeedPendingItem(ctx context.Context, instanceID, operatorID string, kind entity.OperationKind) (*entity.InstanceNodeItem, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid operation kind %d", kind)
	}

	displayName, err := e.directory.Resolve(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	item := &entity.InstanceNodeItem{
		ID:                  uuid.NewString(),
		InstanceID:          instanceID,
		Binding:             entity.NodeBinding{},
		OperatorID:          operatorID,
		OperatorDisplayName: displayName,
		OperationKind:       kind,
		RowVersion:          1,
	}

	err = e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		inst, err := e.instances.GetByID(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("instance %s: %w", instanceID, workflow.ErrNotFound)
		}
		if workflow.State(inst.State).IsTerminal() {
			return fmt.Errorf("instance %s is %s: %w", inst.ID, inst.State, workflow.ErrInstanceClosed)
		}
		return e.items.Create(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AssignOperator fills a dynamically-bound participant slot that was
// materialized without an assignee, snapshotting the display name now
func (e *Engine) AssignOperator(ctx context.Context, instanceID, itemID, operatorID string) error {
	displayName, err := e.directory.Resolve(ctx, operatorID)
	if err != nil {
		return err
	}

	return e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		inst, err := e.instances.GetByID(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("instance %s: %w", instanceID, workflow.ErrNotFound)
		}
		if workflow.State(inst.State).IsTerminal() {
			return fmt.Errorf("instance %s is %s: %w", inst.ID, inst.State, workflow.ErrInstanceClosed)
		}

		item, err := e.items.GetByID(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item == nil || item.InstanceID != instanceID {
			return fmt.Errorf("item %s on instance %s: %w", itemID, instanceID, workflow.ErrNotFound)
		}
		return e.items.SetOperator(ctx, tx, itemID, operatorID, displayName)
	})
}

// materializeNode creates the instance node for a template node together with
// one decision record per participant assignment. Unresolved template slots
// consume pre-seeded unbound records when available and otherwise produce an
// unassigned approver slot.
func (e *Engine) materializeNode(
	ctx context.Context,
	tx *sql.Tx,
	inst *entity.WorkflowInstance,
	templateNode *entity.TemplateNode,
	nodeID string,
) (*entity.InstanceNode, error) {
	node := &entity.InstanceNode{
		ID:              nodeID,
		InstanceID:      inst.ID,
		TemplateNodeID:  templateNode.ID,
		ArrivalDateTime: e.now(),
	}
	if err := e.nodes.Create(ctx, tx, node); err != nil {
		return nil, err
	}

	for _, slot := range templateNode.Items {
		if slot.OperatorID != nil {
			displayName, err := e.directory.Resolve(ctx, *slot.OperatorID)
			if err != nil {
				return nil, err
			}
			item := &entity.InstanceNodeItem{
				ID:                  uuid.NewString(),
				InstanceID:          inst.ID,
				Binding:             entity.NodeBinding{InstanceNodeID: &node.ID},
				OperatorID:          *slot.OperatorID,
				OperatorDisplayName: displayName,
				OperationKind:       entity.KindApprover,
				RowVersion:          1,
			}
			if err := e.items.Create(ctx, tx, item); err != nil {
				return nil, err
			}
			continue
		}

		pendingItems, err := e.items.ListUnbound(ctx, tx, inst.ID)
		if err != nil {
			return nil, err
		}
		// Only approver records can fill an approver slot; observer records
		// stay unbound
		var seeded *entity.InstanceNodeItem
		for _, pending := range pendingItems {
			if pending.OperationKind == entity.KindApprover {
				seeded = pending
				break
			}
		}
		if seeded != nil {
			if err := e.items.Bind(ctx, tx, seeded.ID, node.ID, seeded.OperatorID, seeded.OperatorDisplayName); err != nil {
				return nil, err
			}
			continue
		}

		item := &entity.InstanceNodeItem{
			ID:            uuid.NewString(),
			InstanceID:    inst.ID,
			Binding:       entity.NodeBinding{InstanceNodeID: &node.ID},
			OperationKind: entity.KindApprover,
			RowVersion:    1,
		}
		if err := e.items.Create(ctx, tx, item); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// currentTemplateNode loads the chain and resolves the template node behind
// the instance's current node
func (e *Engine) currentTemplateNode(ctx context.Context, tx *sql.Tx, inst *entity.WorkflowInstance) (*template.Chain, *entity.TemplateNode, error) {
	if inst.CurrentNodeID == nil {
		return nil, nil, fmt.Errorf("instance %s has no current node: %w", inst.ID, workflow.ErrNotCurrentNode)
	}

	instNode, err := e.nodes.GetByID(ctx, tx, *inst.CurrentNodeID)
	if err != nil {
		return nil, nil, err
	}
	if instNode == nil {
		return nil, nil, fmt.Errorf("instance node %s: %w", *inst.CurrentNodeID, workflow.ErrNotFound)
	}

	chain, err := e.templates.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	templateNode := chain.NodeByID(instNode.TemplateNodeID)
	if templateNode == nil {
		return nil, nil, fmt.Errorf("template node %s: %w", instNode.TemplateNodeID, workflow.ErrNotFound)
	}
	return chain, templateNode, nil
}

func (e *Engine) decisionEvent(inst *entity.WorkflowInstance, item *entity.InstanceNodeItem, verdict *bool, comment string) *event.Event {
	payload := map[string]interface{}{
		"item_id":     item.ID,
		"operator_id": item.OperatorID,
		"kind":        item.OperationKind.String(),
		"comment":     comment,
	}
	if verdict != nil {
		payload["is_success"] = *verdict
	}
	return event.New(event.TypeDecisionRecorded, inst.ID, inst.DocID, payload)
}
