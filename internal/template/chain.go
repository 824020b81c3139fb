package template

import (
	"fmt"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
)

// Chain is a template with its nodes in traversal order, entry node first,
// terminal node last. Items are loaded on every node.
type Chain struct {
	Template *entity.WorkflowTemplate
	Nodes    []*entity.TemplateNode
}

// Entry returns the first node of the chain
func (c *Chain) Entry() *entity.TemplateNode {
	if len(c.Nodes) == 0 {
		return nil
	}
	return c.Nodes[0]
}

// NodeByID returns the node with the given id, or nil
func (c *Chain) NodeByID(id string) *entity.TemplateNode {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// PredecessorOf returns the node whose NextNodeID points at the given node,
// or nil when the node is the entry node
func (c *Chain) PredecessorOf(id string) *entity.TemplateNode {
	for _, n := range c.Nodes {
		if n.NextNodeID != nil && *n.NextNodeID == id {
			return n
		}
	}
	return nil
}

// orderNodes arranges stored nodes in traversal order by following the
// next-node edges from the entry node. The chain invariant is checked on
// write, so a violation here means the stored template is corrupt.
func orderNodes(nodes []*entity.TemplateNode) ([]*entity.TemplateNode, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: template has no nodes", workflow.ErrInvalidTemplateShape)
	}

	byID := make(map[string]*entity.TemplateNode, len(nodes))
	hasIncoming := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		if n.NextNodeID != nil {
			hasIncoming[*n.NextNodeID] = true
		}
	}

	var entry *entity.TemplateNode
	for _, n := range nodes {
		if !hasIncoming[n.ID] {
			if entry != nil {
				return nil, fmt.Errorf("%w: multiple entry nodes", workflow.ErrInvalidTemplateShape)
			}
			entry = n
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: no entry node", workflow.ErrInvalidTemplateShape)
	}

	ordered := make([]*entity.TemplateNode, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for current := entry; current != nil; {
		if seen[current.ID] {
			return nil, fmt.Errorf("%w: cycle at node %s", workflow.ErrInvalidTemplateShape, current.ID)
		}
		seen[current.ID] = true
		ordered = append(ordered, current)

		if current.NextNodeID == nil {
			break
		}
		next, ok := byID[*current.NextNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: node %s references unknown next node %s",
				workflow.ErrInvalidTemplateShape, current.ID, *current.NextNodeID)
		}
		current = next
	}

	if len(ordered) != len(nodes) {
		return nil, fmt.Errorf("%w: %d node(s) unreachable from entry",
			workflow.ErrInvalidTemplateShape, len(nodes)-len(ordered))
	}
	return ordered, nil
}
