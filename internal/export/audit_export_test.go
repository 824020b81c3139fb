package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/directory"
	"github.com/openwind/approvalflow/internal/domain/entity"
	"github.com/openwind/approvalflow/internal/domain/workflow"
	"github.com/openwind/approvalflow/internal/engine"
	"github.com/openwind/approvalflow/internal/query"
	"github.com/openwind/approvalflow/internal/repository"
	"github.com/openwind/approvalflow/internal/template"
	"github.com/openwind/approvalflow/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestAuditExporter_WriteInstance(t *testing.T) {
	db := testutil.NewTestDB(t)
	logger := zap.NewNop()
	ctx := context.Background()

	instances := repository.NewInstanceRepository(db.DB, logger)
	nodes := repository.NewNodeRepository(db.DB, logger)
	items := repository.NewItemRepository(db.DB, logger)
	store := template.NewStore(db,
		repository.NewTemplateRepository(db.DB, logger), instances, logger)
	eng := engine.NewEngine(db, store, instances, nodes, items,
		directory.Static{"op-1": "Alice", "op-2": "Bob"}, nil, nil, logger)
	queries := query.NewService(instances, nodes, items, logger)
	exporter := NewAuditExporter(queries, logger)

	tmpl, err := store.CreateTemplate(ctx, template.CreateTemplateInput{
		KindCode: "expense_claim",
		Nodes: []template.NodeSpec{
			{Key: "review", NextKey: strPtr("signoff"), RejectOperation: entity.RejectTerminate,
				Operators: []*string{strPtr("op-1")}},
			{Key: "signoff", RejectOperation: entity.RejectTerminate,
				Operators: []*string{strPtr("op-2")}},
		},
	})
	require.NoError(t, err)

	inst, err := eng.CreateInstance(ctx, tmpl.ID, "doc-1", "")
	require.NoError(t, err)

	verdict := true
	pending, err := queries.ListPendingFor(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, eng.RecordDecision(ctx, engine.DecisionRequest{
		InstanceID: inst.ID,
		ItemID:     pending[0].ID,
		Verdict:    &verdict,
		Comment:    "receipts ok",
	}))

	var buf bytes.Buffer
	require.NoError(t, exporter.WriteInstance(ctx, inst.ID, &buf))

	workbook, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer workbook.Close()

	assert.Equal(t, []string{"Approval Trail"}, workbook.GetSheetList())

	get := func(cell string) string {
		value, err := workbook.GetCellValue("Approval Trail", cell)
		require.NoError(t, err)
		return value
	}

	assert.Equal(t, inst.ID, get("B1"))
	assert.Equal(t, "doc-1", get("B2"))
	assert.Equal(t, workflow.StateRunning.String(), get("B3"))
	assert.Equal(t, "Node", get("A6"))
	assert.Equal(t, "Comment", get("G6"))

	// First trail row: the recorded review decision
	assert.Equal(t, "op-1", get("C7"))
	assert.Equal(t, "Alice", get("D7"))
	assert.Equal(t, "APPROVER", get("E7"))
	assert.Equal(t, "APPROVED", get("F7"))
	assert.Equal(t, "receipts ok", get("G7"))

	// Second trail row: the undecided sign-off slot
	assert.Equal(t, "Bob", get("D8"))
	assert.Equal(t, "", get("F8"))
}

func TestAuditExporter_WriteInstance_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	logger := zap.NewNop()

	instances := repository.NewInstanceRepository(db.DB, logger)
	nodes := repository.NewNodeRepository(db.DB, logger)
	items := repository.NewItemRepository(db.DB, logger)
	exporter := NewAuditExporter(query.NewService(instances, nodes, items, logger), logger)

	var buf bytes.Buffer
	err := exporter.WriteInstance(context.Background(), uuid.NewString(), &buf)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	assert.Zero(t, buf.Len())
}
