// Package query is the read-only projection surface consumed by document UIs
// and notifiers. It has no side effects and reflects latest committed state.
package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/repository"
)

// NodeView is one materialized node with its decision records
type NodeView struct {
	ID              string                     `json:"id"`
	TemplateNodeID  string                     `json:"template_node_id"`
	ArrivalDateTime time.Time                  `json:"arrival_datetime"`
	Current         bool                       `json:"current"`
	Items           []*entity.InstanceNodeItem `json:"items"`
}

// InstanceView is the full state projection of one instance
type InstanceView struct {
	Instance     *entity.WorkflowInstance   `json:"instance"`
	Nodes        []*NodeView                `json:"nodes"`
	PendingItems []*entity.InstanceNodeItem `json:"pending_items,omitempty"`
}

// Service serves workflow read paths
type Service struct {
	instances *repository.InstanceRepository
	nodes     *repository.NodeRepository
	items     *repository.ItemRepository
	logger    *zap.Logger
}

// NewService creates a new query service
func NewService(
	instances *repository.InstanceRepository,
	nodes *repository.NodeRepository,
	items *repository.ItemRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		instances: instances,
		nodes:     nodes,
		items:     items,
		logger:    logger,
	}
}

// GetInstanceState returns the lifecycle state, current node and every
// decision record (decided or not) of an instance, with all audit timestamps
func (s *Service) GetInstanceState(ctx context.Context, instanceID string) (*InstanceView, error) {
	inst, err := s.instances.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %s: %w", instanceID, workflow.ErrNotFound)
	}

	nodes, err := s.nodes.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string][]*entity.InstanceNodeItem)
	var unbound []*entity.InstanceNodeItem
	for _, item := range items {
		if item.Binding.Unbound() {
			unbound = append(unbound, item)
			continue
		}
		nodeID := *item.Binding.InstanceNodeID
		byNode[nodeID] = append(byNode[nodeID], item)
	}

	view := &InstanceView{
		Instance:     inst,
		PendingItems: unbound,
	}
	for _, n := range nodes {
		view.Nodes = append(view.Nodes, &NodeView{
			ID:              n.ID,
			TemplateNodeID:  n.TemplateNodeID,
			ArrivalDateTime: n.ArrivalDateTime,
			Current:         inst.CurrentNodeID != nil && *inst.CurrentNodeID == n.ID,
			Items:           byNode[n.ID],
		})
	}
	return view, nil
}

// ListPendingFor returns an operator's actionable inbox: undecided approver
// records sitting on each running instance's current node
func (s *Service) ListPendingFor(ctx context.Context, operatorID string) ([]*entity.InstanceNodeItem, error) {
	return s.items.ListPendingByOperator(ctx, operatorID)
}

// ListInstancesByDoc returns every instance recorded for a document,
// terminal ones included
func (s *Service) ListInstancesByDoc(ctx context.Context, docID string) ([]*entity.WorkflowInstance, error) {
	return s.instances.ListByDoc(ctx, docID)
}
