package template

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
	"github.com/openwind/approvalflow/internal/repository"
	"github.com/openwind/approvalflow/internal/testutil"
	"github.com/openwind/approvalflow/pkg/database"
)

func newTestStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger := zap.NewNop()
	store := NewStore(db,
		repository.NewTemplateRepository(db.DB, logger),
		repository.NewInstanceRepository(db.DB, logger),
		logger)
	return store, db
}

func threeNodeInput(kindCode string) CreateTemplateInput {
	return CreateTemplateInput{
		KindCode: kindCode,
		Comment:  "purchase order approval",
		Nodes: []NodeSpec{
			{Key: "manager", NextKey: strPtr("finance"), RejectOperation: entity.RejectTerminate,
				Operators: []*string{strPtr("op-mgr")}},
			{Key: "finance", NextKey: strPtr("director"), RejectOperation: entity.RejectRollback,
				Operators: []*string{strPtr("op-fin-1"), strPtr("op-fin-2")}},
			{Key: "director", RejectOperation: entity.RejectTerminate,
				Operators: []*string{nil}},
		},
	}
}

func TestStore_CreateAndGetTemplate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tmpl, err := store.CreateTemplate(ctx, threeNodeInput("purchase_order"))
	require.NoError(t, err)
	require.NotEmpty(t, tmpl.ID)
	assert.Equal(t, "purchase_order", tmpl.KindCode)

	chain, err := store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, chain.Nodes, 3)

	// Chain comes back in traversal order with the authored linkage intact
	entry := chain.Entry()
	require.NotNil(t, entry)
	assert.Equal(t, entry.ID, chain.Nodes[0].ID)
	require.NotNil(t, chain.Nodes[0].NextNodeID)
	assert.Equal(t, chain.Nodes[1].ID, *chain.Nodes[0].NextNodeID)
	require.NotNil(t, chain.Nodes[1].NextNodeID)
	assert.Equal(t, chain.Nodes[2].ID, *chain.Nodes[1].NextNodeID)
	assert.Nil(t, chain.Nodes[2].NextNodeID)

	assert.Equal(t, entity.RejectTerminate, chain.Nodes[0].RejectOperation)
	assert.Equal(t, entity.RejectRollback, chain.Nodes[1].RejectOperation)

	require.Len(t, chain.Nodes[0].Items, 1)
	require.Len(t, chain.Nodes[1].Items, 2)
	require.Len(t, chain.Nodes[2].Items, 1)
	require.NotNil(t, chain.Nodes[0].Items[0].OperatorID)
	assert.Equal(t, "op-mgr", *chain.Nodes[0].Items[0].OperatorID)
	assert.Nil(t, chain.Nodes[2].Items[0].OperatorID, "unresolved slot stays nil for dynamic binding")

	assert.Equal(t, chain.Nodes[1].ID, chain.PredecessorOf(chain.Nodes[2].ID).ID)
	assert.Nil(t, chain.PredecessorOf(entry.ID))
}

func TestStore_CreateTemplate_InvalidInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTemplate(ctx, CreateTemplateInput{
		KindCode: "purchase_order",
		Nodes:    nil,
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidTemplateShape)

	_, err = store.CreateTemplate(ctx, CreateTemplateInput{
		KindCode: "",
		Nodes:    []NodeSpec{{Key: "only", RejectOperation: entity.RejectTerminate, Operators: []*string{strPtr("op-1")}}},
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidTemplateShape)
}

func TestStore_GetTemplate_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetTemplate(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestStore_ListByKindCode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTemplate(ctx, threeNodeInput("purchase_order"))
	require.NoError(t, err)
	_, err = store.CreateTemplate(ctx, threeNodeInput("purchase_order"))
	require.NoError(t, err)
	_, err = store.CreateTemplate(ctx, threeNodeInput("expense_claim"))
	require.NoError(t, err)

	// Kind codes are not unique; callers pick among matches
	matches, err := store.ListByKindCode(ctx, "purchase_order")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	none, err := store.ListByKindCode(ctx, "unknown_kind")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpdateTemplate_ReplacesChain(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tmpl, err := store.CreateTemplate(ctx, threeNodeInput("purchase_order"))
	require.NoError(t, err)

	err = store.UpdateTemplate(ctx, tmpl.ID, CreateTemplateInput{
		KindCode: "purchase_order",
		Comment:  "shortened to a single step",
		Nodes: []NodeSpec{
			{Key: "director", RejectOperation: entity.RejectTerminate,
				Operators: []*string{strPtr("op-dir")}},
		},
	})
	require.NoError(t, err)

	chain, err := store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, chain.Nodes, 1)
	assert.Nil(t, chain.Nodes[0].NextNodeID)
	assert.Equal(t, "shortened to a single step", chain.Template.Comment)
}

func TestStore_UpdateTemplate_InUse(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	tmpl, err := store.CreateTemplate(ctx, threeNodeInput("purchase_order"))
	require.NoError(t, err)

	instances := repository.NewInstanceRepository(db.DB, zap.NewNop())
	require.NoError(t, instances.Create(ctx, nil, &entity.WorkflowInstance{
		ID:         uuid.NewString(),
		TemplateID: tmpl.ID,
		DocID:      "doc-1",
		State:      workflow.StateRunning.String(),
		RowVersion: 1,
		CreatedAt:  time.Now().UTC(),
	}))

	err = store.UpdateTemplate(ctx, tmpl.ID, threeNodeInput("purchase_order"))
	assert.ErrorIs(t, err, workflow.ErrTemplateInUse)

	err = store.DeleteTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, workflow.ErrTemplateInUse)
}

func TestStore_DeleteTemplate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tmpl, err := store.CreateTemplate(ctx, threeNodeInput("purchase_order"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteTemplate(ctx, tmpl.ID))

	_, err = store.GetTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	err = store.DeleteTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}
