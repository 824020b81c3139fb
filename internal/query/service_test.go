package query

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/directory"
	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/engine"
	"github.com/openwind/approvalflow/internal/repository"
	"github.com/openwind/approvalflow/internal/template"
	"github.com/openwind/approvalflow/internal/testutil"
)

func strPtr(s string) *string { return &s }

// newQueryFixture wires a real engine so the projections are asserted against
// state produced by actual transitions
func newQueryFixture(t *testing.T) (*Service, *engine.Engine, *template.Store) {
	t.Helper()

	db := testutil.NewTestDB(t)
	logger := zap.NewNop()

	instances := repository.NewInstanceRepository(db.DB, logger)
	nodes := repository.NewNodeRepository(db.DB, logger)
	items := repository.NewItemRepository(db.DB, logger)
	store := template.NewStore(db,
		repository.NewTemplateRepository(db.DB, logger), instances, logger)

	eng := engine.NewEngine(db, store, instances, nodes, items,
		directory.Static{"op-1": "Alice", "op-2": "Bob"}, nil, nil, logger)

	return NewService(instances, nodes, items, logger), eng, store
}

func twoStepTemplate(t *testing.T, store *template.Store) string {
	t.Helper()
	tmpl, err := store.CreateTemplate(context.Background(), template.CreateTemplateInput{
		KindCode: "expense_claim",
		Nodes: []template.NodeSpec{
			{Key: "review", NextKey: strPtr("signoff"), RejectOperation: entity.RejectTerminate,
				Operators: []*string{strPtr("op-1")}},
			{Key: "signoff", RejectOperation: entity.RejectTerminate,
				Operators: []*string{strPtr("op-2")}},
		},
	})
	require.NoError(t, err)
	return tmpl.ID
}

func TestService_GetInstanceState(t *testing.T) {
	svc, eng, store := newQueryFixture(t)
	ctx := context.Background()
	templateID := twoStepTemplate(t, store)

	inst, err := eng.CreateInstance(ctx, templateID, "doc-1", "")
	require.NoError(t, err)

	verdict := true
	items, err := svc.ListPendingFor(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, eng.RecordDecision(ctx, engine.DecisionRequest{
		InstanceID: inst.ID,
		ItemID:     items[0].ID,
		Verdict:    &verdict,
		Comment:    "receipts attached",
	}))

	seeded, err := eng.SeedPendingItem(ctx, inst.ID, "op-2", entity.KindCarbonCopy)
	require.NoError(t, err)

	view, err := svc.GetInstanceState(ctx, inst.ID)
	require.NoError(t, err)

	assert.Equal(t, inst.ID, view.Instance.ID)
	assert.Equal(t, workflow.StateRunning.String(), view.Instance.State)
	require.Len(t, view.Nodes, 2)

	// First node holds the recorded decision and is no longer current
	first := view.Nodes[0]
	assert.False(t, first.Current)
	require.Len(t, first.Items, 1)
	require.NotNil(t, first.Items[0].IsSuccess)
	assert.True(t, *first.Items[0].IsSuccess)
	assert.Equal(t, "receipts attached", first.Items[0].Comment)
	assert.Equal(t, "Alice", first.Items[0].OperatorDisplayName)

	second := view.Nodes[1]
	assert.True(t, second.Current)
	require.Len(t, second.Items, 1)
	assert.False(t, second.Items[0].Decided())

	require.Len(t, view.PendingItems, 1)
	assert.Equal(t, seeded.ID, view.PendingItems[0].ID)
}

func TestService_GetInstanceState_NotFound(t *testing.T) {
	svc, _, _ := newQueryFixture(t)

	_, err := svc.GetInstanceState(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestService_ListPendingFor(t *testing.T) {
	svc, eng, store := newQueryFixture(t)
	ctx := context.Background()
	templateID := twoStepTemplate(t, store)

	inst, err := eng.CreateInstance(ctx, templateID, "doc-1", "")
	require.NoError(t, err)

	// op-2's step has not been reached yet
	pending, err := svc.ListPendingFor(ctx, "op-2")
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = svc.ListPendingFor(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, inst.ID, pending[0].InstanceID)

	verdict := true
	require.NoError(t, eng.RecordDecision(ctx, engine.DecisionRequest{
		InstanceID: inst.ID,
		ItemID:     pending[0].ID,
		Verdict:    &verdict,
	}))

	pending, err = svc.ListPendingFor(ctx, "op-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = svc.ListPendingFor(ctx, "op-2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_ListInstancesByDoc(t *testing.T) {
	svc, eng, store := newQueryFixture(t)
	ctx := context.Background()
	templateID := twoStepTemplate(t, store)

	first, err := eng.CreateInstance(ctx, templateID, "doc-1", "")
	require.NoError(t, err)
	require.NoError(t, eng.CancelInstance(ctx, first.ID, "withdrawn"))

	second, err := eng.CreateInstance(ctx, templateID, "doc-1", "")
	require.NoError(t, err)

	// History keeps terminal instances alongside the open one
	all, err := svc.ListInstancesByDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	states := map[string]string{}
	for _, inst := range all {
		states[inst.ID] = inst.State
	}
	assert.Equal(t, workflow.StateCancelled.String(), states[first.ID])
	assert.Equal(t, workflow.StateRunning.String(), states[second.ID])

	none, err := svc.ListInstancesByDoc(ctx, "doc-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
