package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
)

const instanceColumns = `id, template_id, doc_id, remark, state, current_node_id,
		row_version, created_at, closed_at`

// InstanceRepository handles workflow instance database operations.
// The instance row is the single serialization point per process: every
// transition goes through CompareAndSwap on its row_version.
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *InstanceRepository) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new workflow instance
func (r *InstanceRepository) Create(ctx context.Context, tx *sql.Tx, inst *entity.WorkflowInstance) error {
	query := `INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q(tx).ExecContext(ctx, query,
		inst.ID,
		inst.TemplateID,
		inst.DocID,
		inst.Remark,
		inst.State,
		nullableStringToValue(inst.CurrentNodeID),
		inst.RowVersion,
		inst.CreatedAt,
		nullableTimeToValue(inst.ClosedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetByID retrieves an instance by ID. Returns nil when the id is unknown.
func (r *InstanceRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`
	row := r.q(tx).QueryRowContext(ctx, query, id)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return inst, nil
}

// FindActiveByDoc retrieves the open (non-terminal) instance for a document,
// or nil when none exists
func (r *InstanceRepository) FindActiveByDoc(ctx context.Context, tx *sql.Tx, docID string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE doc_id = ? AND state NOT IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`
	row := r.q(tx).QueryRowContext(ctx, query, docID,
		workflow.StateCompleted.String(),
		workflow.StateTerminated.String(),
		workflow.StateCancelled.String(),
	)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// ListByDoc retrieves every instance, terminal included, recorded for a document
func (r *InstanceRepository) ListByDoc(ctx context.Context, docID string) ([]*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE doc_id = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances by doc: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstanceRows(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// CountByTemplate returns how many instances reference a template
func (r *InstanceRepository) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_instances WHERE template_id = ?`, templateID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances by template: %w", err)
	}
	return count, nil
}

// CompareAndSwap moves the instance to a new state and current node if and
// only if the caller still holds the latest row version. A stale version
// returns workflow.ErrConcurrencyConflict, which is also what guarantees that
// two approvers finishing a node concurrently produce exactly one advancement.
func (r *InstanceRepository) CompareAndSwap(
	ctx context.Context,
	tx *sql.Tx,
	id string,
	rowVersion int64,
	state workflow.State,
	currentNodeID *string,
	closedAt *time.Time,
) error {
	query := `UPDATE workflow_instances
		SET state = ?, current_node_id = ?, closed_at = ?, row_version = row_version + 1
		WHERE id = ? AND row_version = ?`

	result, err := r.q(tx).ExecContext(ctx, query,
		state.String(),
		nullableStringToValue(currentNodeID),
		nullableTimeToValue(closedAt),
		id,
		rowVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("instance %s at version %d: %w", id, rowVersion, workflow.ErrConcurrencyConflict)
	}
	return nil
}

func scanInstance(row *sql.Row) (*entity.WorkflowInstance, error) {
	var inst entity.WorkflowInstance
	var currentNodeID sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(
		&inst.ID,
		&inst.TemplateID,
		&inst.DocID,
		&inst.Remark,
		&inst.State,
		&currentNodeID,
		&inst.RowVersion,
		&inst.CreatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.CurrentNodeID = parseNullableString(currentNodeID)
	inst.ClosedAt = parseNullableTime(closedAt)
	return &inst, nil
}

func scanInstanceRows(rows *sql.Rows) (*entity.WorkflowInstance, error) {
	var inst entity.WorkflowInstance
	var currentNodeID sql.NullString
	var closedAt sql.NullTime

	err := rows.Scan(
		&inst.ID,
		&inst.TemplateID,
		&inst.DocID,
		&inst.Remark,
		&inst.State,
		&currentNodeID,
		&inst.RowVersion,
		&inst.CreatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}
	inst.CurrentNodeID = parseNullableString(currentNodeID)
	inst.ClosedAt = parseNullableTime(closedAt)
	return &inst, nil
}
