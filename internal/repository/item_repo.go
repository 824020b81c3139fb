package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
)

const itemColumns = `id, instance_id, instance_node_id, operator_id, operator_display_name,
		comment, operation_kind, is_success, row_version`

// ItemRepository handles decision record database operations
type ItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *sql.DB, logger *zap.Logger) *ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ItemRepository) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a decision record
func (r *ItemRepository) Create(ctx context.Context, tx *sql.Tx, item *entity.InstanceNodeItem) error {
	query := `INSERT INTO instance_node_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q(tx).ExecContext(ctx, query,
		item.ID,
		item.InstanceID,
		nullableStringToValue(item.Binding.InstanceNodeID),
		item.OperatorID,
		item.OperatorDisplayName,
		item.Comment,
		int(item.OperationKind),
		nullableBoolToValue(item.IsSuccess),
		item.RowVersion,
	)
	if err != nil {
		r.logger.Error("Failed to create instance node item", zap.String("id", item.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance node item: %w", err)
	}
	return nil
}

// GetByID retrieves a decision record by ID. Returns nil when unknown.
func (r *ItemRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*entity.InstanceNodeItem, error) {
	query := `SELECT ` + itemColumns + ` FROM instance_node_items WHERE id = ?`
	row := r.q(tx).QueryRowContext(ctx, query, id)
	item, err := scanItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListByNode retrieves the decision records bound to an instance node
func (r *ItemRepository) ListByNode(ctx context.Context, tx *sql.Tx, instanceNodeID string) ([]*entity.InstanceNodeItem, error) {
	query := `SELECT ` + itemColumns + ` FROM instance_node_items
		WHERE instance_node_id = ? ORDER BY id`
	return r.list(ctx, tx, query, instanceNodeID)
}

// ListByInstance retrieves every decision record of an instance, bound or not
func (r *ItemRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.InstanceNodeItem, error) {
	query := `SELECT ` + itemColumns + ` FROM instance_node_items
		WHERE instance_id = ? ORDER BY instance_node_id, id`
	return r.list(ctx, nil, query, instanceID)
}

// ListUnbound retrieves pre-seeded records not yet attached to a node
func (r *ItemRepository) ListUnbound(ctx context.Context, tx *sql.Tx, instanceID string) ([]*entity.InstanceNodeItem, error) {
	query := `SELECT ` + itemColumns + ` FROM instance_node_items
		WHERE instance_id = ? AND instance_node_id IS NULL ORDER BY id`
	return r.list(ctx, tx, query, instanceID)
}

// ListPendingByOperator retrieves an operator's actionable inbox: undecided
// approver records bound to each running instance's current node
func (r *ItemRepository) ListPendingByOperator(ctx context.Context, operatorID string) ([]*entity.InstanceNodeItem, error) {
	query := `SELECT i.id, i.instance_id, i.instance_node_id, i.operator_id, i.operator_display_name,
			i.comment, i.operation_kind, i.is_success, i.row_version
		FROM instance_node_items i
		JOIN workflow_instances w ON w.id = i.instance_id AND w.current_node_id = i.instance_node_id
		WHERE i.operator_id = ?
			AND i.operation_kind = ?
			AND i.is_success IS NULL
			AND w.state = ?
		ORDER BY i.id`

	rows, err := r.db.QueryContext(ctx, query, operatorID, int(entity.KindApprover), workflow.StateRunning.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// CompareAndSwapDecision records a verdict and comment if and only if the
// caller holds the latest row version. Stale writes return
// workflow.ErrConcurrencyConflict.
func (r *ItemRepository) CompareAndSwapDecision(
	ctx context.Context,
	tx *sql.Tx,
	id string,
	rowVersion int64,
	isSuccess *bool,
	comment string,
) error {
	query := `UPDATE instance_node_items
		SET is_success = ?, comment = ?, row_version = row_version + 1
		WHERE id = ? AND row_version = ?`

	result, err := r.q(tx).ExecContext(ctx, query,
		nullableBoolToValue(isSuccess), comment, id, rowVersion)
	if err != nil {
		r.logger.Error("Failed to record decision", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to record decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read decision result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s at version %d: %w", id, rowVersion, workflow.ErrConcurrencyConflict)
	}
	return nil
}

// Bind attaches a pre-seeded record to the instance node the process arrived
// at, taking the display-name snapshot at binding time
func (r *ItemRepository) Bind(ctx context.Context, tx *sql.Tx, id, instanceNodeID, operatorID, displayName string) error {
	query := `UPDATE instance_node_items
		SET instance_node_id = ?, operator_id = ?, operator_display_name = ?, row_version = row_version + 1
		WHERE id = ? AND instance_node_id IS NULL`

	result, err := r.q(tx).ExecContext(ctx, query, instanceNodeID, operatorID, displayName, id)
	if err != nil {
		r.logger.Error("Failed to bind item", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to bind item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read bind result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s is not unbound: %w", id, workflow.ErrConcurrencyConflict)
	}
	return nil
}

// SetOperator assigns an operator to a dynamically-bound slot that is still
// unassigned, taking the display-name snapshot at assignment time
func (r *ItemRepository) SetOperator(ctx context.Context, tx *sql.Tx, id, operatorID, displayName string) error {
	query := `UPDATE instance_node_items
		SET operator_id = ?, operator_display_name = ?, row_version = row_version + 1
		WHERE id = ? AND operator_id = '' AND is_success IS NULL`

	result, err := r.q(tx).ExecContext(ctx, query, operatorID, displayName, id)
	if err != nil {
		r.logger.Error("Failed to assign operator", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to assign operator: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read assign result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s is not an unassigned slot: %w", id, workflow.ErrConcurrencyConflict)
	}
	return nil
}

// ResetNodeVerdicts re-opens decision collection at a rolled-back node by
// clearing every approver verdict bound to it
func (r *ItemRepository) ResetNodeVerdicts(ctx context.Context, tx *sql.Tx, instanceNodeID string) error {
	query := `UPDATE instance_node_items
		SET is_success = NULL, row_version = row_version + 1
		WHERE instance_node_id = ? AND operation_kind = ?`

	_, err := r.q(tx).ExecContext(ctx, query, instanceNodeID, int(entity.KindApprover))
	if err != nil {
		r.logger.Error("Failed to reset node verdicts", zap.String("instance_node_id", instanceNodeID), zap.Error(err))
		return fmt.Errorf("failed to reset node verdicts: %w", err)
	}
	return nil
}

func (r *ItemRepository) list(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) ([]*entity.InstanceNodeItem, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instance node items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]*entity.InstanceNodeItem, error) {
	var items []*entity.InstanceNodeItem
	for rows.Next() {
		var item entity.InstanceNodeItem
		var nodeID sql.NullString
		var kind int
		var isSuccess sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.InstanceID,
			&nodeID,
			&item.OperatorID,
			&item.OperatorDisplayName,
			&item.Comment,
			&kind,
			&isSuccess,
			&item.RowVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance node item: %w", err)
		}
		item.Binding = entity.NodeBinding{InstanceNodeID: parseNullableString(nodeID)}
		item.OperationKind = entity.OperationKind(kind)
		item.IsSuccess = parseNullableBool(isSuccess)
		items = append(items, &item)
	}
	return items, rows.Err()
}

func scanItemRow(row *sql.Row) (*entity.InstanceNodeItem, error) {
	var item entity.InstanceNodeItem
	var nodeID sql.NullString
	var kind int
	var isSuccess sql.NullInt64
	err := row.Scan(
		&item.ID,
		&item.InstanceID,
		&nodeID,
		&item.OperatorID,
		&item.OperatorDisplayName,
		&item.Comment,
		&kind,
		&isSuccess,
		&item.RowVersion,
	)
	if err != nil {
		return nil, err
	}
	item.Binding = entity.NodeBinding{InstanceNodeID: parseNullableString(nodeID)}
	item.OperationKind = entity.OperationKind(kind)
	item.IsSuccess = parseNullableBool(isSuccess)
	return &item, nil
}
