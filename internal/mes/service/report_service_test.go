package service_test

import (
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportGeneratedSerials(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "RP-1", nil)
	testutil.SeedFormatConfig(t, env.DB, part.ID, "R-{SEQ:3}", 1, 1)

	_, err := env.Services.Generation.GenerateBatchSerials(ctx, part.ID, "u", 2, service.GenerateOptions{WorkOrderID: "WO-5"})
	require.NoError(t, err)

	f, filename, err := env.Services.Report.ExportGeneratedSerials(ctx, part.ID, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, strings.HasPrefix(filename, "serials_"+part.ID))
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))

	rows, err := f.GetRows("序列号")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "序列号", rows[0][0])
	serials := []string{rows[1][0], rows[2][0]}
	assert.ElementsMatch(t, []string{"R-001", "R-002"}, serials)
	assert.Equal(t, "WO-5", rows[1][3])
}

func TestExportLineage(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "RP-2", nil)
	src := testutil.SeedIdentity(t, env.DB, part.ID, "SRC")
	a := testutil.SeedIdentity(t, env.DB, part.ID, "A")
	b := testutil.SeedIdentity(t, env.DB, part.ID, "B")

	_, err := env.Services.Propagation.PropagateSplit(ctx, service.SplitReq{
		SourceID: src.ID, OperationCode: "CUT", RoutingSequence: 10, TargetIDs: []string{a.ID, b.ID},
	}, "op")
	require.NoError(t, err)

	f, filename, err := env.Services.Report.ExportLineage(ctx, src.ID)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, filename, "lineage_SRC_")
	assert.Equal(t, []string{"祖先", "后代", "流转历史"}, f.GetSheetList())

	ancestors, err := f.GetRows("祖先")
	require.NoError(t, err)
	assert.Len(t, ancestors, 1, "header only")

	descendants, err := f.GetRows("后代")
	require.NoError(t, err)
	assert.Len(t, descendants, 3)

	history, err := f.GetRows("流转历史")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "SPLIT", history[1][0])
	assert.Equal(t, "CUT", history[1][1])

	_, _, err = env.Services.Report.ExportLineage(ctx, "missing")
	assert.True(t, service.IsNotFound(err))
}

func TestArchiveLineageReport_RequiresObjectStorage(t *testing.T) {
	env := testutil.NewTestEnv(t)
	part := testutil.SeedPart(t, env.DB, "RP-3", nil)
	identity := testutil.SeedIdentity(t, env.DB, part.ID, "ARC")

	_, err := env.Services.Report.ArchiveLineageReport(ctx, identity.ID)
	require.Error(t, err)
	assert.True(t, service.IsConfiguration(err))
}
