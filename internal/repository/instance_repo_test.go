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

// seedTemplate inserts a minimal template row to satisfy the instance
// foreign key
func seedTemplate(t *testing.T, db *database.DB) string {
	t.Helper()
	repo := NewTemplateRepository(db.DB, zap.NewNop())
	tmpl := &entity.WorkflowTemplate{
		ID:        uuid.NewString(),
		KindCode:  "purchase_order",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), nil, tmpl))
	return tmpl.ID
}

func seedInstance(t *testing.T, db *database.DB, templateID, docID string, state workflow.State) *entity.WorkflowInstance {
	t.Helper()
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	inst := &entity.WorkflowInstance{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		DocID:      docID,
		State:      state.String(),
		RowVersion: 1,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), nil, inst))
	return inst
}

func TestInstanceRepository_GetByID(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	created := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)

	got, err := repo.GetByID(ctx, nil, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "doc-1", got.DocID)
	assert.Equal(t, workflow.StateRunning.String(), got.State)
	assert.Nil(t, got.CurrentNodeID)
	assert.Nil(t, got.ClosedAt)

	missing, err := repo.GetByID(ctx, nil, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInstanceRepository_FindActiveByDoc(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	seedInstance(t, db, templateID, "doc-1", workflow.StateCompleted)
	seedInstance(t, db, templateID, "doc-1", workflow.StateTerminated)
	seedInstance(t, db, templateID, "doc-1", workflow.StateCancelled)

	// Terminal instances never count as active
	active, err := repo.FindActiveByDoc(ctx, nil, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	running := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)

	active, err = repo.FindActiveByDoc(ctx, nil, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, running.ID, active.ID)

	all, err := repo.ListByDoc(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestInstanceRepository_CompareAndSwap(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)
	inst := seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)

	closedAt := time.Now().UTC()
	err := repo.CompareAndSwap(ctx, nil, inst.ID, inst.RowVersion,
		workflow.StateCompleted, nil, &closedAt)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, nil, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted.String(), got.State)
	assert.Equal(t, inst.RowVersion+1, got.RowVersion)
	require.NotNil(t, got.ClosedAt)

	// A second write against the stale version must fail
	err = repo.CompareAndSwap(ctx, nil, inst.ID, inst.RowVersion,
		workflow.StateCancelled, nil, &closedAt)
	assert.ErrorIs(t, err, workflow.ErrConcurrencyConflict)
}

func TestInstanceRepository_CountByTemplate(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewInstanceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	templateID := seedTemplate(t, db)

	count, err := repo.CountByTemplate(ctx, templateID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	seedInstance(t, db, templateID, "doc-1", workflow.StateRunning)
	seedInstance(t, db, templateID, "doc-2", workflow.StateCompleted)

	count, err = repo.CountByTemplate(ctx, templateID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
