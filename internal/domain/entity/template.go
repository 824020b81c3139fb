package entity

import "time"

// WorkflowTemplate is an administrator-authored blueprint for an approval
// process: an ordered chain of nodes attachable to documents of a kind.
type WorkflowTemplate struct {
	ID        string    `json:"id"`
	KindCode  string    `json:"kind_code"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateNode is one ordered step inside a template. Nodes form a singly
// linked chain; NextNodeID is nil on the terminal node.
type TemplateNode struct {
	ID              string          `json:"id"`
	TemplateID      string          `json:"template_id"`
	NextNodeID      *string         `json:"next_node_id,omitempty"`
	RejectOperation RejectOperation `json:"reject_operation"`
	Items           []*TemplateNodeItem `json:"items,omitempty"`
}

// TemplateNodeItem is a participant assignment within a template node.
// OperatorID is nil when the assignee is left for dynamic binding at
// instance time.
type TemplateNodeItem struct {
	ID         string  `json:"id"`
	NodeID     string  `json:"node_id"`
	OperatorID *string `json:"operator_id,omitempty"`
}
