package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/testutil"
	"github.com/openwind/approvalflow/pkg/database"
)

func seedNode(t *testing.T, db *database.DB, instanceID string) *entity.InstanceNode {
	t.Helper()
	repo := NewNodeRepository(db.DB, zap.NewNop())
	node := &entity.InstanceNode{
		ID:              uuid.NewString(),
		InstanceID:      instanceID,
		TemplateNodeID:  uuid.NewString(),
		ArrivalDateTime: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), nil, node))
	return node
}

func seedItem(t *testing.T, db *database.DB, instanceID string, nodeID *string, operatorID string, kind entity.OperationKind) *entity.InstanceNodeItem {
	t.Helper()
	repo := NewItemRepository(db.DB, zap.NewNop())
	item := &entity.InstanceNodeItem{
		ID:                  uuid.NewString(),
		InstanceID:          instanceID,
		Binding:             entity.NodeBinding{InstanceNodeID: nodeID},
		OperatorID:          operatorID,
		OperatorDisplayName: operatorID,
		OperationKind:       kind,
		RowVersion:          1,
	}
	require.NoError(t, repo.Create(context.Background(), nil, item))
	return item
}

func TestItemRepository_CompareAndSwapDecision(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	inst := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)
	node := seedNode(t, db, inst.ID)
	item := seedItem(t, db, inst.ID, &node.ID, "op-1", entity.KindApprover)

	verdict := true
	require.NoError(t, repo.CompareAndSwapDecision(ctx, nil, item.ID, item.RowVersion, &verdict, "looks good"))

	got, err := repo.GetByID(ctx, nil, item.ID)
	require.NoError(t, err)
	require.True(t, got.Decided())
	assert.True(t, *got.IsSuccess)
	assert.Equal(t, "looks good", got.Comment)
	assert.Equal(t, item.RowVersion+1, got.RowVersion)

	// Stale row version must not overwrite the recorded verdict
	rejected := false
	err = repo.CompareAndSwapDecision(ctx, nil, item.ID, item.RowVersion, &rejected, "changed my mind")
	assert.ErrorIs(t, err, workflow.ErrConcurrencyConflict)

	got, err = repo.GetByID(ctx, nil, item.ID)
	require.NoError(t, err)
	assert.True(t, *got.IsSuccess)
}

func TestItemRepository_Bind(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	inst := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)
	node := seedNode(t, db, inst.ID)
	seeded := seedItem(t, db, inst.ID, nil, "op-1", entity.KindApprover)

	unbound, err := repo.ListUnbound(ctx, nil, inst.ID)
	require.NoError(t, err)
	require.Len(t, unbound, 1)

	require.NoError(t, repo.Bind(ctx, nil, seeded.ID, node.ID, "op-1", "Alice"))

	got, err := repo.GetByID(ctx, nil, seeded.ID)
	require.NoError(t, err)
	assert.True(t, got.Binding.BoundTo(node.ID))
	assert.Equal(t, "Alice", got.OperatorDisplayName)

	unbound, err = repo.ListUnbound(ctx, nil, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, unbound)

	// A bound record cannot be bound again
	err = repo.Bind(ctx, nil, seeded.ID, node.ID, "op-1", "Alice")
	assert.ErrorIs(t, err, workflow.ErrConcurrencyConflict)
}

func TestItemRepository_SetOperator(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	inst := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)
	node := seedNode(t, db, inst.ID)
	slot := seedItem(t, db, inst.ID, &node.ID, "", entity.KindApprover)

	require.NoError(t, repo.SetOperator(ctx, nil, slot.ID, "op-9", "Bob"))

	got, err := repo.GetByID(ctx, nil, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "op-9", got.OperatorID)
	assert.Equal(t, "Bob", got.OperatorDisplayName)

	// Already-assigned slots are not reassignable
	err = repo.SetOperator(ctx, nil, slot.ID, "op-10", "Carol")
	assert.ErrorIs(t, err, workflow.ErrConcurrencyConflict)
}

func TestItemRepository_ResetNodeVerdicts(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	inst := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)
	node := seedNode(t, db, inst.ID)
	approver := seedItem(t, db, inst.ID, &node.ID, "op-1", entity.KindApprover)
	observer := seedItem(t, db, inst.ID, &node.ID, "op-2", entity.KindCarbonCopy)

	verdict := false
	require.NoError(t, repo.CompareAndSwapDecision(ctx, nil, approver.ID, approver.RowVersion, &verdict, ""))
	require.NoError(t, repo.CompareAndSwapDecision(ctx, nil, observer.ID, observer.RowVersion, nil, "noted"))

	require.NoError(t, repo.ResetNodeVerdicts(ctx, nil, node.ID))

	got, err := repo.GetByID(ctx, nil, approver.ID)
	require.NoError(t, err)
	assert.False(t, got.Decided())

	// Observer notes survive a reset
	note, err := repo.GetByID(ctx, nil, observer.ID)
	require.NoError(t, err)
	assert.Equal(t, "noted", note.Comment)
}

func TestItemRepository_ListPendingByOperator(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB, zap.NewNop())
	instances := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	inst := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)
	current := seedNode(t, db, inst.ID)
	previous := seedNode(t, db, inst.ID)
	require.NoError(t, instances.CompareAndSwap(ctx, nil, inst.ID, inst.RowVersion,
		workflow.StateRunning, &current.ID, nil))

	actionable := seedItem(t, db, inst.ID, &current.ID, "op-1", entity.KindApprover)
	seedItem(t, db, inst.ID, &previous.ID, "op-1", entity.KindApprover)
	seedItem(t, db, inst.ID, &current.ID, "op-1", entity.KindCarbonCopy)
	seedItem(t, db, inst.ID, &current.ID, "op-2", entity.KindApprover)

	// Only the undecided approver record on the current node is actionable
	pending, err := repo.ListPendingByOperator(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, actionable.ID, pending[0].ID)

	verdict := true
	require.NoError(t, repo.CompareAndSwapDecision(ctx, nil, actionable.ID, actionable.RowVersion, &verdict, ""))

	pending, err = repo.ListPendingByOperator(ctx, "op-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
