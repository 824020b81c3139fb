package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
)

const templateColumns = `id, kind_code, comment, created_at`
const templateNodeColumns = `id, template_id, next_node_id, reject_operation`

// TemplateRepository handles workflow template database operations
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TemplateRepository) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new template
func (r *TemplateRepository) Create(ctx context.Context, tx *sql.Tx, t *entity.WorkflowTemplate) error {
	query := `INSERT INTO wf_templates (id, kind_code, comment, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.q(tx).ExecContext(ctx, query, t.ID, t.KindCode, t.Comment, t.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// CreateNode inserts a template node
func (r *TemplateRepository) CreateNode(ctx context.Context, tx *sql.Tx, n *entity.TemplateNode) error {
	query := `INSERT INTO wf_template_nodes (id, template_id, next_node_id, reject_operation)
		VALUES (?, ?, ?, ?)`
	_, err := r.q(tx).ExecContext(ctx, query,
		n.ID,
		n.TemplateID,
		nullableStringToValue(n.NextNodeID),
		int(n.RejectOperation),
	)
	if err != nil {
		r.logger.Error("Failed to create template node", zap.String("id", n.ID), zap.Error(err))
		return fmt.Errorf("failed to create template node: %w", err)
	}
	return nil
}

// CreateNodeItem inserts a participant assignment for a template node
func (r *TemplateRepository) CreateNodeItem(ctx context.Context, tx *sql.Tx, item *entity.TemplateNodeItem) error {
	query := `INSERT INTO wf_template_node_items (id, node_id, operator_id) VALUES (?, ?, ?)`
	_, err := r.q(tx).ExecContext(ctx, query, item.ID, item.NodeID, nullableStringToValue(item.OperatorID))
	if err != nil {
		r.logger.Error("Failed to create template node item", zap.String("id", item.ID), zap.Error(err))
		return fmt.Errorf("failed to create template node item: %w", err)
	}
	return nil
}

// GetByID retrieves a template by ID. Returns nil when the id is unknown.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM wf_templates WHERE id = ?`

	var t entity.WorkflowTemplate
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.KindCode, &t.Comment, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

// ListByKindCode retrieves all templates configured for a document kind,
// oldest first
func (r *TemplateRepository) ListByKindCode(ctx context.Context, kindCode string) ([]*entity.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM wf_templates WHERE kind_code = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, kindCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates by kind code: %w", err)
	}
	defer rows.Close()

	var templates []*entity.WorkflowTemplate
	for rows.Next() {
		var t entity.WorkflowTemplate
		if err := rows.Scan(&t.ID, &t.KindCode, &t.Comment, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// ListNodes retrieves all nodes of a template in storage order, items not loaded
func (r *TemplateRepository) ListNodes(ctx context.Context, tx *sql.Tx, templateID string) ([]*entity.TemplateNode, error) {
	query := `SELECT ` + templateNodeColumns + ` FROM wf_template_nodes WHERE template_id = ? ORDER BY id`

	rows, err := r.q(tx).QueryContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list template nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*entity.TemplateNode
	for rows.Next() {
		n, err := scanTemplateNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListNodeItems retrieves the participant assignments of a template node
func (r *TemplateRepository) ListNodeItems(ctx context.Context, tx *sql.Tx, nodeID string) ([]*entity.TemplateNodeItem, error) {
	query := `SELECT id, node_id, operator_id FROM wf_template_node_items WHERE node_id = ? ORDER BY id`

	rows, err := r.q(tx).QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list template node items: %w", err)
	}
	defer rows.Close()

	var items []*entity.TemplateNodeItem
	for rows.Next() {
		var item entity.TemplateNodeItem
		var operatorID sql.NullString
		if err := rows.Scan(&item.ID, &item.NodeID, &operatorID); err != nil {
			return nil, fmt.Errorf("failed to scan template node item: %w", err)
		}
		item.OperatorID = parseNullableString(operatorID)
		items = append(items, &item)
	}
	return items, rows.Err()
}

// Delete removes a template and, through cascading foreign keys, its nodes
// and items
func (r *TemplateRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := r.q(tx).ExecContext(ctx, `DELETE FROM wf_templates WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete template", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteNodes removes all nodes (and their items) of a template, used when an
// administrative edit replaces the chain
func (r *TemplateRepository) DeleteNodes(ctx context.Context, tx *sql.Tx, templateID string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM wf_template_nodes WHERE template_id = ?`, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete template nodes: %w", err)
	}
	return nil
}

// UpdateComment updates the free-text remark of a template
func (r *TemplateRepository) UpdateComment(ctx context.Context, tx *sql.Tx, id, comment string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE wf_templates SET comment = ? WHERE id = ?`, comment, id)
	if err != nil {
		return fmt.Errorf("failed to update template comment: %w", err)
	}
	return nil
}

func scanTemplateNode(rows *sql.Rows) (*entity.TemplateNode, error) {
	var n entity.TemplateNode
	var nextNodeID sql.NullString
	var rejectOp int
	if err := rows.Scan(&n.ID, &n.TemplateID, &nextNodeID, &rejectOp); err != nil {
		return nil, fmt.Errorf("failed to scan template node: %w", err)
	}
	n.NextNodeID = parseNullableString(nextNodeID)
	n.RejectOperation = entity.RejectOperation(rejectOp)
	return &n, nil
}
