package entity

import "time"

// WorkflowInstance is one running or finished execution of a template against
// a specific business document. DocID is an opaque correlation key owned by
// the external document; the engine never dereferences it.
type WorkflowInstance struct {
	ID            string     `json:"id"`
	TemplateID    string     `json:"template_id"`
	DocID         string     `json:"doc_id"`
	Remark        string     `json:"remark"`
	State         string     `json:"state"`
	CurrentNodeID *string    `json:"current_node_id,omitempty"`
	RowVersion    int64      `json:"row_version"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// InstanceNode is the materialized occurrence of a template node inside one
// instance. Nodes are created lazily: a node never visited has no row.
type InstanceNode struct {
	ID              string    `json:"id"`
	InstanceID      string    `json:"instance_id"`
	TemplateNodeID  string    `json:"template_node_id"`
	ArrivalDateTime time.Time `json:"arrival_datetime"`
}

// NodeBinding is the binding state of a decision record. An item is created
// Unbound when it is pre-seeded ahead of node arrival and becomes Bound once
// the process reaches its node.
type NodeBinding struct {
	InstanceNodeID *string `json:"instance_node_id,omitempty"`
}

// Unbound reports whether the item has not yet been attached to a node
func (b NodeBinding) Unbound() bool {
	return b.InstanceNodeID == nil
}

// BoundTo reports whether the item is attached to the given instance node
func (b NodeBinding) BoundTo(instanceNodeID string) bool {
	return b.InstanceNodeID != nil && *b.InstanceNodeID == instanceNodeID
}

// InstanceNodeItem is one participant's slot at an instance node: either an
// Approver decision record or a CarbonCopy observer note.
// OperatorDisplayName is an immutable snapshot taken when the row is created,
// decoupling the audit trail from later profile edits.
// IsSuccess is nil while the decision is undecided and is only ever evaluated
// for Approver items.
type InstanceNodeItem struct {
	ID                  string        `json:"id"`
	InstanceID          string        `json:"instance_id"`
	Binding             NodeBinding   `json:"binding"`
	OperatorID          string        `json:"operator_id"`
	OperatorDisplayName string        `json:"operator_display_name"`
	Comment             string        `json:"comment"`
	OperationKind       OperationKind `json:"operation_kind"`
	IsSuccess           *bool         `json:"is_success,omitempty"`
	RowVersion          int64         `json:"row_version"`
}

// Decided reports whether an Approver verdict has been recorded
func (i *InstanceNodeItem) Decided() bool {
	return i.IsSuccess != nil
}
