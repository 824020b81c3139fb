package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
)

const instanceNodeColumns = `id, instance_id, template_node_id, arrival_datetime`

// NodeRepository handles instance node database operations. Instance nodes
// are created lazily, only when the chain actually reaches them.
type NodeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNodeRepository creates a new instance node repository
func NewNodeRepository(db *sql.DB, logger *zap.Logger) *NodeRepository {
	return &NodeRepository{
		db:     db,
		logger: logger,
	}
}

func (r *NodeRepository) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts an instance node
func (r *NodeRepository) Create(ctx context.Context, tx *sql.Tx, n *entity.InstanceNode) error {
	query := `INSERT INTO instance_nodes (` + instanceNodeColumns + `) VALUES (?, ?, ?, ?)`
	_, err := r.q(tx).ExecContext(ctx, query, n.ID, n.InstanceID, n.TemplateNodeID, n.ArrivalDateTime)
	if err != nil {
		r.logger.Error("Failed to create instance node", zap.String("id", n.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance node: %w", err)
	}
	return nil
}

// GetByID retrieves an instance node by ID. Returns nil when unknown.
func (r *NodeRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*entity.InstanceNode, error) {
	query := `SELECT ` + instanceNodeColumns + ` FROM instance_nodes WHERE id = ?`

	var n entity.InstanceNode
	err := r.q(tx).QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.InstanceID, &n.TemplateNodeID, &n.ArrivalDateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance node: %w", err)
	}
	return &n, nil
}

// FindByTemplateNode retrieves the instance node materialized for a given
// template node, or nil when that step was never reached. Used to locate the
// rollback target, which is re-opened rather than re-created.
func (r *NodeRepository) FindByTemplateNode(ctx context.Context, tx *sql.Tx, instanceID, templateNodeID string) (*entity.InstanceNode, error) {
	query := `SELECT ` + instanceNodeColumns + ` FROM instance_nodes
		WHERE instance_id = ? AND template_node_id = ?`

	var n entity.InstanceNode
	err := r.q(tx).QueryRowContext(ctx, query, instanceID, templateNodeID).Scan(
		&n.ID, &n.InstanceID, &n.TemplateNodeID, &n.ArrivalDateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find instance node by template node: %w", err)
	}
	return &n, nil
}

// ListByInstance retrieves all materialized nodes of an instance in arrival order
func (r *NodeRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.InstanceNode, error) {
	query := `SELECT ` + instanceNodeColumns + ` FROM instance_nodes
		WHERE instance_id = ? ORDER BY arrival_datetime, id`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instance nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*entity.InstanceNode
	for rows.Next() {
		var n entity.InstanceNode
		if err := rows.Scan(&n.ID, &n.InstanceID, &n.TemplateNodeID, &n.ArrivalDateTime); err != nil {
			return nil, fmt.Errorf("failed to scan instance node: %w", err)
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// CountByInstance returns how many nodes an instance has materialized
func (r *NodeRepository) CountByInstance(ctx context.Context, instanceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instance_nodes WHERE instance_id = ?`, instanceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instance nodes: %w", err)
	}
	return count, nil
}
